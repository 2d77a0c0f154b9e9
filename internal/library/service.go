package library

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	"creaturegrc/pkg/requestcontext"
)

// Service exposes the control library: catalog import, control lookup, and
// cross-framework equivalences. Reference data rarely changes after import,
// so all reads go straight to the store without caching.
type Service struct {
	store     Store
	publisher *activity.Publisher
	logger    *slog.Logger
}

func NewService(store Store, publisher *activity.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger}
}

// catalogFile mirrors the YAML layout of framework catalog exports.
type catalogFile struct {
	Framework struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Source      string `yaml:"source"`
		Description string `yaml:"description"`
	} `yaml:"framework"`
	Domains []struct {
		Code     string `yaml:"code"`
		Name     string `yaml:"name"`
		Controls []struct {
			Code              string `yaml:"code"`
			Name              string `yaml:"name"`
			Description       string `yaml:"description"`
			Type              string `yaml:"type"`
			TestingProcedures string `yaml:"testing_procedures"`
		} `yaml:"controls"`
	} `yaml:"domains"`
}

// ImportSummary reports what a catalog import changed.
type ImportSummary struct {
	Framework        string `json:"framework"`
	FrameworkCreated bool   `json:"framework_created"`
	DomainsCreated   int    `json:"domains_created"`
	ControlsCreated  int    `json:"controls_created"`
	ControlsUpdated  int    `json:"controls_updated"`
}

// ImportCatalog loads a YAML catalog. The import is idempotent: re-importing
// the same catalog updates control text in place and creates nothing new.
func (s *Service) ImportCatalog(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed catalog file")
	}
	if file.Framework.Name == "" || file.Framework.Version == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "catalog must name a framework and version")
	}
	for _, domain := range file.Domains {
		if domain.Code == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "catalog domain missing code")
		}
		for _, control := range domain.Controls {
			if control.Code == "" {
				return nil, dErrors.New(dErrors.CodeValidation, "catalog control missing code in domain "+domain.Code)
			}
			if !ControlType(control.Type).Valid() {
				return nil, dErrors.New(dErrors.CodeValidation,
					"control "+control.Code+" has unknown type "+control.Type)
			}
		}
	}

	now := requestcontext.Now(ctx)
	summary := &ImportSummary{Framework: file.Framework.Name}

	framework, err := s.store.FindFrameworkByName(ctx, file.Framework.Name)
	if errors.Is(err, sentinel.ErrNotFound) {
		framework, err = NewFramework(id.FrameworkID(uuid.New()),
			file.Framework.Name, file.Framework.Version, file.Framework.Source, now)
		if err != nil {
			return nil, err
		}
		framework.Description = file.Framework.Description
		if createErr := s.store.CreateFramework(ctx, framework); createErr != nil {
			if errors.Is(createErr, sentinel.ErrConflict) {
				return nil, dErrors.New(dErrors.CodeConflict, "framework name already in use")
			}
			return nil, dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to create framework")
		}
		summary.FrameworkCreated = true
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up framework")
	}

	for _, domainEntry := range file.Domains {
		domain, err := s.store.FindDomainByCode(ctx, framework.ID, domainEntry.Code)
		if errors.Is(err, sentinel.ErrNotFound) {
			domain = &ControlDomain{
				ID:          id.ControlDomainID(uuid.New()),
				FrameworkID: framework.ID,
				Code:        domainEntry.Code,
				Name:        domainEntry.Name,
			}
			if createErr := s.store.CreateDomain(ctx, domain); createErr != nil {
				return nil, dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to create domain "+domainEntry.Code)
			}
			summary.DomainsCreated++
		} else if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up domain "+domainEntry.Code)
		}

		for _, controlEntry := range domainEntry.Controls {
			control := &Control{
				DomainID:          domain.ID,
				Code:              controlEntry.Code,
				Name:              controlEntry.Name,
				Description:       controlEntry.Description,
				Type:              ControlType(controlEntry.Type),
				TestingProcedures: controlEntry.TestingProcedures,
			}
			created, err := s.store.UpsertControl(ctx, control)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert control "+controlEntry.Code)
			}
			if created {
				summary.ControlsCreated++
			} else {
				summary.ControlsUpdated++
			}
		}
	}

	if err := s.publisher.Emit(ctx, activity.Event{
		Timestamp: now,
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionCatalogImported,
		Subject:   framework.Name,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record import")
	}

	s.logger.Info("catalog imported",
		"framework", summary.Framework,
		"controls_created", summary.ControlsCreated,
		"controls_updated", summary.ControlsUpdated)
	return summary, nil
}

// ResolveControl finds a control by framework name and control code.
func (s *Service) ResolveControl(ctx context.Context, frameworkName, code string) (*ControlRef, error) {
	framework, err := s.store.FindFrameworkByName(ctx, frameworkName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown framework: "+frameworkName)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up framework")
	}
	ref, err := s.store.FindControlByCode(ctx, framework.ID, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown control code: "+code)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up control")
	}
	return ref, nil
}

// DeclareEquivalence records that two controls satisfy the same requirement.
func (s *Service) DeclareEquivalence(ctx context.Context, controlID, peerID id.ControlID, note string) error {
	if controlID == peerID {
		return dErrors.New(dErrors.CodeValidation, "a control cannot be equivalent to itself")
	}
	if err := s.store.AddEquivalence(ctx, &Equivalence{ControlID: controlID, PeerControlID: peerID, Note: note}); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "equivalence already declared")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "unknown control in equivalence")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to declare equivalence")
	}
	return nil
}
