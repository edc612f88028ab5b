package progress

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

type (
	Service interface {
		// List returns the records of owner.
		List(ctx context.Context, owner string) ([]Record, error)
		// Update upserts rec as owner's record.
		Update(ctx context.Context, owner string, rec Record) error
		// Batch upserts every item on behalf of subject. Items are independent: one failing item
		// does not fail the others, and committed items are not rolled back.
		Batch(ctx context.Context, subject string, items []BatchItem) []BatchResult
	}

	service struct {
		repo       *Repository
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo *Repository, validate *validator.Validate, translator ut.Translator, logger core.Logger) Service {
	return &service{
		repo:       repo,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

func (svc *service) List(ctx context.Context, owner string) ([]Record, error) {
	records, err := svc.repo.List(ctx, owner)
	return records, errors.Wrap(err, "listing records")
}

func (svc *service) Update(ctx context.Context, owner string, rec Record) error {
	rec.OwnerID = owner
	if err := svc.validateRecord(&rec); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.Upsert(ctx, owner, rec), "upserting record")
}

func (svc *service) validateRecord(rec *Record) error {
	rec.Clean()
	return core.TranslateValidationErrors(svc.validate.Struct(rec), svc.translator)
}

func (svc *service) Batch(ctx context.Context, subject string, items []BatchItem) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	for _, item := range items {
		results = append(results, svc.batchOne(ctx, subject, item))
	}
	return results
}

func (svc *service) batchOne(ctx context.Context, subject string, item BatchItem) BatchResult {
	if core.CleanString(item.OwnerID) != subject {
		return BatchResult{Error: core.AuthorizationError{Subject: subject, Owner: item.OwnerID}.Error(), Item: item}
	}

	err := svc.Update(ctx, subject, item)
	switch cause := errors.Cause(err).(type) {
	case nil:
		return BatchResult{Success: true, Item: item}
	case *core.ValidationError:
		return BatchResult{Error: validationMessage(cause), Item: item}
	default:
		svc.logger.Error("batch item failed", err, core.Person{ID: subject})
		return BatchResult{Error: core.ErrOperationFailed.Error(), Item: item}
	}
}

func validationMessage(vErr *core.ValidationError) string {
	msg := core.ErrMissingFields.Error()
	if vErr.Err != nil {
		msg = vErr.Err.Error()
	}
	for _, fld := range vErr.Fields {
		msg += "; " + fld.Field + ": " + fld.Error
	}
	return msg
}
