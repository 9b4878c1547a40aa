// Package corpus supplies the patient records searched by the engine and keeps the
// current snapshot of them in memory.
//
// A Provider returns a complete snapshot of the corpus in a stable enumeration order
// within the deadline carried by its context. Providers are consulted at start-up and
// by the background sync only, never per search.
package corpus

import (
	"context"

	"github.com/gcbaptista/patient-search/model"
)

// Provider is a source of patient records.
type Provider interface {
	// Name identifies the source in logs, metrics and sync reports.
	Name() string
	// Patients returns the full corpus. Implementations must honour ctx cancellation.
	Patients(ctx context.Context) ([]model.Patient, error)
}

// StaticProvider serves a fixed slice of patients.
type StaticProvider struct {
	name     string
	patients []model.Patient
}

// NewStaticProvider returns a provider that always yields a copy of patients.
func NewStaticProvider(name string, patients []model.Patient) *StaticProvider {
	return &StaticProvider{name: name, patients: append([]model.Patient(nil), patients...)}
}

func (p *StaticProvider) Name() string { return p.name }

func (p *StaticProvider) Patients(ctx context.Context) ([]model.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]model.Patient(nil), p.patients...), nil
}
