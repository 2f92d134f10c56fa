// Package workzone maps case operations onto the Workzone REST API.
package workzone

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/models"
)

// ErrOperationFailed is returned when the backend answered 2xx but the
// answer does not carry what the operation needs.
var ErrOperationFailed = errors.New("operation failed")

// API is the subset of the resilient client the service needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) (bool, error)
}

// CaseInput describes a new case. Nil optional fields are not sent.
type CaseInput struct {
	Title       string
	Description *string
	CaseType    *string
}

// CaseUpdate carries the fields to change on an existing case.
type CaseUpdate struct {
	Title       *string
	Description *string
	Status      *string
}

type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

// GetCase returns the case document as compact JSON text.
func (s *Service) GetCase(ctx context.Context, caseID string) (string, error) {
	log.Info().Str("case_id", caseID).Msg("Getting case")

	var v models.Value
	if err := s.api.Get(ctx, casePath(caseID), &v); err != nil {
		log.Error().Err(err).Str("case_id", caseID).Msg("Error getting case")
		return "", err
	}
	return v.String(), nil
}

// CreateCase creates a case and returns the id assigned by the backend.
func (s *Service) CreateCase(ctx context.Context, in CaseInput) (string, error) {
	log.Info().Msg("Creating new case")

	title := in.Title
	body := models.CaseRequest{
		Title:       &title,
		Description: in.Description,
		CaseType:    in.CaseType,
	}

	var v models.Value
	if err := s.api.Post(ctx, "/cases", body, &v); err != nil {
		log.Error().Err(err).Msg("Error creating case")
		return "", err
	}

	id, ok := v.Field("id")
	if !ok {
		return "", fmt.Errorf("create case: response has no id: %w", ErrOperationFailed)
	}
	text, ok := id.Text()
	if !ok {
		return "", fmt.Errorf("create case: id is %s: %w", id.Kind(), ErrOperationFailed)
	}
	return text, nil
}

// UpdateCase reports true when the backend echoed a non-null document.
// A 2xx with an empty or null body counts as a failed update.
func (s *Service) UpdateCase(ctx context.Context, caseID string, upd CaseUpdate) (bool, error) {
	log.Info().Str("case_id", caseID).Msg("Updating case")

	body := models.CaseRequest{
		Title:       upd.Title,
		Description: upd.Description,
		Status:      upd.Status,
	}

	var v models.Value
	if err := s.api.Put(ctx, casePath(caseID), body, &v); err != nil {
		log.Error().Err(err).Str("case_id", caseID).Msg("Error updating case")
		return false, err
	}
	return !v.IsNull(), nil
}

// SearchCases returns the matching case documents; never nil.
func (s *Service) SearchCases(ctx context.Context, query string) ([]models.Value, error) {
	log.Info().Str("query", query).Msg("Searching cases")

	var v models.Value
	path := "/cases/search?" + url.Values{"q": {query}}.Encode()
	if err := s.api.Get(ctx, path, &v); err != nil {
		log.Error().Err(err).Str("query", query).Msg("Error searching cases")
		return nil, err
	}

	cases, err := v.Elements()
	if err != nil {
		return nil, fmt.Errorf("search cases: %v: %w", err, ErrOperationFailed)
	}
	return cases, nil
}

// DeleteCase removes a case. A backend refusal is (false, nil).
func (s *Service) DeleteCase(ctx context.Context, caseID string) (bool, error) {
	log.Info().Str("case_id", caseID).Msg("Deleting case")

	ok, err := s.api.Delete(ctx, casePath(caseID))
	if err != nil {
		log.Error().Err(err).Str("case_id", caseID).Msg("Error deleting case")
		return false, err
	}
	return ok, nil
}

func casePath(caseID string) string {
	return "/cases/" + url.PathEscape(caseID)
}
