// Package config loads mediahub configuration.
//
// # Sources
//
// Values are layered, later sources winning:
//
//  1. Default()
//  2. the YAML file named by MEDIAHUB_CONFIG_FILE
//  3. environment variables, seeded from a .env file when one exists
//
// Environment variables:
//
//	MEDIAHUB_HOST, MEDIAHUB_PORT, MEDIAHUB_ALLOWED_ORIGINS
//	MEDIAHUB_DATABASE_URL             # empty runs on the in-memory store
//	MEDIAHUB_DATABASE_REPLICA_URLS    # comma separated
//	MEDIAHUB_REDIS_URL                # enables the shared rate limiter
//	MEDIA_BUCKET, MEDIAHUB_S3_REGION, MEDIAHUB_S3_ENDPOINT
//	STRIPE_SECRET_KEY, STRIPE_WEBHOOK_SECRET
//	STRIPE_PRICE_50GB, STRIPE_PRICE_200GB
//	APP_URL, SETUP_KEY
//	MEDIAHUB_LOG_LEVEL, MEDIAHUB_METRICS_ENABLED, MEDIAHUB_OTEL_ENABLED
//
// # Reloading
//
// Watch follows the YAML file with fsnotify. Only the log level is applied at runtime;
// everything else needs a restart.
//
//	go config.Watch(ctx, path, logger, config.ApplyLogLevel(logger))
package config
