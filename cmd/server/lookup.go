package main

import (
	"context"
	"errors"

	"creaturegrc/internal/library"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
)

// controlCodeLookup resolves (framework, control code) to an implementation
// id for evidence submissions that address by code instead of id.
type controlCodeLookup struct {
	library *library.Service
	tracker tracker.Store
}

func newControlCodeLookup(lib *library.Service, trk tracker.Store) *controlCodeLookup {
	return &controlCodeLookup{library: lib, tracker: trk}
}

func (l *controlCodeLookup) ByControlCode(ctx context.Context, framework, controlCode string) (id.ImplementationID, error) {
	ref, err := l.library.ResolveControl(ctx, framework, controlCode)
	if err != nil {
		return id.ImplementationID{}, err
	}
	implementation, err := l.tracker.FindByControl(ctx, ref.Control.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return id.ImplementationID{}, dErrors.New(dErrors.CodeNotFound,
			"control "+controlCode+" has no implementation")
	}
	if err != nil {
		return id.ImplementationID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve implementation")
	}
	return implementation.ID, nil
}
