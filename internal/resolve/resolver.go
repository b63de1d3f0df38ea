// Package resolve maps an engine extractor id to a configured profile.
package resolve

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ytbatch/internal/model"
	"ytbatch/internal/profile"
)

type Resolver struct {
	store   *profile.Store
	confirm Confirmer
	log     *zap.Logger
}

// Learned is an alias registered during resolution.
type Learned struct {
	Alias   string `json:"alias"`
	Profile string `json:"profile"`
}

func New(store *profile.Store, confirm Confirmer, log *zap.Logger) *Resolver {
	if confirm == nil {
		confirm = Never
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, confirm: confirm, log: log}
}

// Resolve returns the profile id for rec, or "" to use the default profile.
// A confirmed fuzzy match registers the extractor id as an alias.
func (r *Resolver) Resolve(rec *model.Record) string {
	if rec.HasError() {
		return ""
	}
	key := rec.Key()
	if key == "" {
		return ""
	}
	if p, ok := r.store.Get(key); ok {
		return p.ID
	}
	if p, ok := r.store.GetByAlias(key); ok {
		return p.ID
	}
	return r.closestMatch(rec, key)
}

// closestMatch offers the first profile id, in store order, contained in
// key. Only that one candidate is offered.
func (r *Resolver) closestMatch(rec *model.Record, key string) string {
	for _, id := range r.store.IDs() {
		if !strings.Contains(key, id) {
			continue
		}
		question := fmt.Sprintf("[%s] config not found. Closest match is %s. Would you like to use this one?", rec.ExtractorID, id)
		if !r.confirm.Confirm(id, question) {
			r.log.Debug("closest match declined", zap.String("extractor", key), zap.String("profile", id))
			return ""
		}
		if r.store.RegisterAlias(id, key) {
			r.log.Info("learned alias", zap.String("alias", key), zap.String("profile", id))
		}
		return id
	}
	return ""
}

// ResolveAll resolves records one at a time in input order. Records that
// already failed are left alone.
func (r *Resolver) ResolveAll(records []*model.Record) ([]Learned, error) {
	learned := make([]Learned, 0)
	for _, rec := range records {
		if rec.HasError() {
			continue
		}
		before := r.aliasOwner(rec.Key())
		rec.ResolvedProfile = r.Resolve(rec)
		if err := model.TransitionRecord(rec, model.PhaseResolved); err != nil {
			return learned, err
		}
		if before == "" && rec.ResolvedProfile != "" && r.aliasOwner(rec.Key()) == rec.ResolvedProfile {
			learned = append(learned, Learned{Alias: rec.Key(), Profile: rec.ResolvedProfile})
		}
		r.log.Debug("resolved",
			zap.Int("line", rec.Line),
			zap.String("url", rec.URL),
			zap.String("extractor", rec.ExtractorID),
			zap.String("profile", profileLabel(rec.ResolvedProfile)),
		)
	}
	return learned, nil
}

func (r *Resolver) aliasOwner(key string) string {
	if key == "" {
		return ""
	}
	if p, ok := r.store.GetByAlias(key); ok {
		return p.ID
	}
	return ""
}

func profileLabel(id string) string {
	if id == "" {
		return profile.DefaultID
	}
	return id
}
