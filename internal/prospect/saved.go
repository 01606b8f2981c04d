// ABOUTME: Saving prospects and listing saved ones for the active owner
// ABOUTME: Both require a resolvable identity and fail before any network call without one

package prospect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/store"
)

// ErrInvalidKind is returned for a save that is neither a person nor a company.
var ErrInvalidKind = errors.New("prospect kind must be person or company")

// Saved groups the owner's saved prospects by kind.
type Saved struct {
	People    []client.SavedRecord `json:"people"`
	Companies []client.SavedRecord `json:"companies"`
}

// Save stores a search hit for the active owner. Saving the same hit again
// replaces the stored payload.
func (o *Orchestrator) Save(ctx context.Context, data json.RawMessage, kind store.ProspectKind) (*client.SavedRecord, error) {
	if kind != store.KindPerson && kind != store.KindCompany {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	owner, err := o.owner()
	if err != nil {
		return nil, err
	}

	rec, err := o.api.SaveProspect(ctx, client.SaveProspectRequest{
		Type:   string(kind),
		Data:   data,
		UserID: owner,
	})
	if err != nil {
		o.notices.Post(notice.Error("save", err, true))
		return nil, fmt.Errorf("saving %s: %w", kind, err)
	}
	o.logger.Info("prospect saved", "kind", kind, "id", rec.ID)
	return rec, nil
}

// SaveContact saves a person from a search result.
func (o *Orchestrator) SaveContact(ctx context.Context, c client.Contact) (*client.SavedRecord, error) {
	data, err := payload(c.Raw, c)
	if err != nil {
		return nil, fmt.Errorf("encoding contact: %w", err)
	}
	return o.Save(ctx, data, store.KindPerson)
}

// SaveOrganization saves a company from a search result.
func (o *Orchestrator) SaveOrganization(ctx context.Context, org client.Organization) (*client.SavedRecord, error) {
	data, err := payload(org.Raw, org)
	if err != nil {
		return nil, fmt.Errorf("encoding organization: %w", err)
	}
	return o.Save(ctx, data, store.KindCompany)
}

// ListSaved returns the active owner's saved prospects.
func (o *Orchestrator) ListSaved(ctx context.Context) (*Saved, error) {
	owner, err := o.owner()
	if err != nil {
		return nil, err
	}

	list, err := o.api.ListProspects(ctx, owner)
	if err != nil {
		o.notices.Post(notice.Error("saved-prospects", err, true))
		return nil, fmt.Errorf("listing saved prospects: %w", err)
	}
	saved := &Saved{People: list.People, Companies: list.Companies}
	if saved.People == nil {
		saved.People = []client.SavedRecord{}
	}
	if saved.Companies == nil {
		saved.Companies = []client.SavedRecord{}
	}
	return saved, nil
}

func (o *Orchestrator) owner() (string, error) {
	if o.identity == nil {
		o.notices.Post(notice.Reauth("prospect"))
		return "", auth.ErrIdentity
	}
	owner, err := o.identity.OwnerID()
	if err != nil {
		o.notices.Post(notice.Reauth("prospect"))
		if !errors.Is(err, auth.ErrIdentity) {
			err = fmt.Errorf("%w: %w", auth.ErrIdentity, err)
		}
		return "", err
	}
	return owner, nil
}
