// Package memory provides in-process implementations of every store interface.
// It backs single-node development servers and the end-to-end tests.
package memory

import (
	"sync"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// Store holds all records behind one lock
type Store struct {
	mu sync.RWMutex

	tokens     map[string]*auth.TokenRecord
	userTokens map[string]*auth.UserTokenRecord
	users      map[string]*auth.User
	usersEmail map[string]string
	codes      map[string]*auth.SignInCode

	teams   map[string]*teams.Team
	members map[string]map[string]*teams.Member // team -> user -> member

	media map[string]map[string]*media.Record // team -> media id -> record

	ledger map[string]*billing.LedgerEntry
	events []*audit.Event
}

// New creates an empty store
func New() *Store {
	return &Store{
		tokens:     map[string]*auth.TokenRecord{},
		userTokens: map[string]*auth.UserTokenRecord{},
		users:      map[string]*auth.User{},
		usersEmail: map[string]string{},
		codes:      map[string]*auth.SignInCode{},
		teams:      map[string]*teams.Team{},
		members:    map[string]map[string]*teams.Member{},
		media:      map[string]map[string]*media.Record{},
		ledger:     map[string]*billing.LedgerEntry{},
	}
}

var (
	_ auth.TokenStore   = (*Store)(nil)
	_ auth.UserStore    = (*Store)(nil)
	_ auth.CodeStore    = (*Store)(nil)
	_ teams.Store       = (*Store)(nil)
	_ teams.MemberStore = (*Store)(nil)
	_ teams.UsageIndex  = (*Store)(nil)
	_ media.Store       = (*Store)(nil)
	_ billing.Ledger    = (*Store)(nil)
	_ audit.Sink        = (*Store)(nil)
	_ media.ObjectStore = (*ObjectStore)(nil)
)
