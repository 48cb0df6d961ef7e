package billing

import (
	"bytes"
	"encoding/json"
)

// stripeID decodes a field that Stripe sends either as an id string or as an expanded object
type stripeID string

func (s *stripeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*s = stripeID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*s = stripeID(obj.ID)
	return nil
}

// invoicePayload covers both the legacy top-level subscription field and the newer parent details
type invoicePayload struct {
	ID           string   `json:"id"`
	Subscription stripeID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription stripeID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines *struct {
		Data []struct {
			Subscription stripeID `json:"subscription"`
			Parent       *struct {
				SubscriptionItemDetails *struct {
					Subscription stripeID `json:"subscription"`
				} `json:"subscription_item_details"`
			} `json:"parent"`
		} `json:"data"`
	} `json:"lines"`
}

// subscriptionID finds the subscription an invoice bills, or "" for one-off invoices
func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil && p.Parent.SubscriptionDetails.Subscription != "" {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	if p.Lines != nil {
		for _, line := range p.Lines.Data {
			if line.Subscription != "" {
				return string(line.Subscription)
			}
			if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil && line.Parent.SubscriptionItemDetails.Subscription != "" {
				return string(line.Parent.SubscriptionItemDetails.Subscription)
			}
		}
	}
	return ""
}
