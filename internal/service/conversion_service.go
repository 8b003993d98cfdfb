package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/store"
)

// Dispatcher hands a job to whatever runs the pipeline. Dispatch must
// return once the job is scheduled, not when it finishes.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.ConversionTask) error
}

// ConversionService accepts conversion requests and answers status polls.
type ConversionService struct {
	store      *store.Store
	dispatcher Dispatcher
}

func NewConversionService(st *store.Store, dispatcher Dispatcher) *ConversionService {
	return &ConversionService{
		store:      st,
		dispatcher: dispatcher,
	}
}

// Submit records a PENDING job and schedules it. The response is returned
// before any tool runs.
func (s *ConversionService) Submit(ctx context.Context, userID string, req *model.ConvertRequest) (*model.ConvertResponse, error) {
	// The task outlives the request; its strings must not alias request memory.
	userID = strings.Clone(userID)
	url := strings.Clone(strings.TrimSpace(req.URL))
	conv, err := s.store.CreateConversion(ctx, url, userID)
	if err != nil {
		return nil, fmt.Errorf("create conversion: %w", err)
	}

	task := model.ConversionTask{
		JobID:       conv.ID,
		URL:         url,
		UserID:      userID,
		EnableStems: req.EnableStems,
	}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		log.WithError(err).WithField("job_id", conv.ID).Error("failed to dispatch conversion")
		if failErr := s.store.FailConversion(context.WithoutCancel(ctx), conv.ID, "failed to schedule conversion"); failErr != nil {
			log.WithError(failErr).WithField("job_id", conv.ID).Error("failed to mark undispatched conversion")
		}
		return nil, fmt.Errorf("dispatch conversion: %w", err)
	}

	log.WithFields(log.Fields{
		"job_id":       conv.ID,
		"user_id":      userID,
		"enable_stems": req.EnableStems,
	}).Info("conversion queued")

	return &model.ConvertResponse{
		ID:      conv.ID,
		Status:  conv.Status,
		Message: "Conversion started",
	}, nil
}

// Status returns the caller's conversion. Someone else's job is reported as
// not found.
func (s *ConversionService) Status(ctx context.Context, userID, id string) (*model.Conversion, error) {
	conv, err := s.store.GetConversion(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *ConversionService) List(ctx context.Context, userID string) ([]*model.Conversion, error) {
	return s.store.ListConversions(ctx, userID)
}

// Delete removes the caller's history record. Songs it produced stay in the
// library.
func (s *ConversionService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Status(ctx, userID, id); err != nil {
		return err
	}
	return mapStoreError(s.store.DeleteConversion(ctx, id))
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrEmailTaken):
		return ErrEmailTaken
	default:
		return err
	}
}
