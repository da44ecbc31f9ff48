package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Step is one read-check/mutation pair of a unit of work. Check runs first and
// typically locks and validates the rows Apply is about to change.
type Step struct {
	Name  string
	Check func(tx *gorm.DB) error
	Apply func(tx *gorm.DB) error
}

// UnitOfWork runs a list of steps as a single all-or-nothing operation.
type UnitOfWork interface {
	RunSteps(ctx context.Context, steps ...Step) error
}

// RunSteps executes steps in order inside one transaction. The first failing
// check or apply rolls back everything applied before it.
func (c *Client) RunSteps(ctx context.Context, steps ...Step) error {
	return c.WithTx(ctx, func(tx *gorm.DB) error {
		return ApplySteps(tx, steps...)
	})
}

// ApplySteps runs steps against an already open transaction.
func ApplySteps(tx *gorm.DB, steps ...Step) error {
	for _, step := range steps {
		if step.Check != nil {
			if err := step.Check(tx); err != nil {
				return err
			}
		}
		if step.Apply != nil {
			if err := step.Apply(tx); err != nil {
				return fmt.Errorf("%s: %w", step.Name, err)
			}
		}
	}
	return nil
}
