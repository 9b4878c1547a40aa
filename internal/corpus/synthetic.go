package corpus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gcbaptista/patient-search/model"
)

// DefaultSyntheticSize is the number of patients generated when no size is configured.
const DefaultSyntheticSize = 60

var (
	syntheticNames = []string{
		"Martin", "Dubois", "Peeters", "Janssens", "Maes", "Jacobs",
		"Mertens", "Willems", "Claes", "Goossens", "Wouters", "Lambert",
	}
	syntheticFirstNames = []string{
		"Marie", "Jean", "Sophie", "Luc", "Emma", "Noah", "Julie", "Lucas", "Sarah", "Louis",
	}
	syntheticSites  = []string{"Alpha", "Beta", "Gamma", "Delta"}
	syntheticFloors = []string{"0", "1", "2", "3", "4"}
)

// SyntheticProvider generates a deterministic corpus from cyclic vocabularies.
// Two calls with the same size return identical records in identical order.
type SyntheticProvider struct {
	size int
}

// NewSyntheticProvider returns a generator of size patients; size <= 0 uses DefaultSyntheticSize.
func NewSyntheticProvider(size int) *SyntheticProvider {
	if size <= 0 {
		size = DefaultSyntheticSize
	}
	return &SyntheticProvider{size: size}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

func (p *SyntheticProvider) Patients(ctx context.Context) ([]model.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patients := make([]model.Patient, p.size)
	for i := range patients {
		patients[i] = syntheticPatient(i)
	}
	return patients, nil
}

// syntheticPatient derives every field of patient i from the index alone.
func syntheticPatient(i int) model.Patient {
	floor := (i / len(syntheticSites)) % len(syntheticFloors)
	year := 1940 + (i*7)%65
	month := i%12 + 1
	day := (i*3)%28 + 1

	return model.Patient{
		ID:                   fmt.Sprintf("P%04d", i+1),
		Name:                 syntheticNames[i%len(syntheticNames)],
		FirstName:            syntheticFirstNames[i%len(syntheticFirstNames)],
		Room:                 fmt.Sprintf("%d%02d", floor+1, i%30+1),
		Bed:                  strconv.Itoa(i%2 + 1),
		Floor:                syntheticFloors[floor],
		Site:                 syntheticSites[i%len(syntheticSites)],
		BirthDate:            fmt.Sprintf("%04d-%02d-%02d", year, month, day),
		SocialSecurityNumber: fmt.Sprintf("%02d.%02d.%02d-%03d.%02d", year%100, month, day, (i*37+101)%1000, (i*53+11)%97),
	}
}
