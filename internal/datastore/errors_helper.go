package datastore

import (
	"github.com/tphakala/vidguard/internal/errors"
)

func jobNotFound(id string) error {
	return errors.NotFoundError("analysis job", id)
}

func jobExists(id string) error {
	return errors.Newf("analysis job %s already exists", id).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("job_id", id).
		Build()
}

func dbError(err error, operation, id string) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	if id != "" {
		b = b.Context("job_id", id)
	}
	return b.Build()
}
