package container

import (
	"time"

	"mivoto/internal/domain"
	"mivoto/internal/repository"
)

// Demo data ids, shared with the migrate seed command
const (
	DemoInstitutionID = "inst-demo"
	DemoBallotID      = "1"
	DemoBallotTitle   = "Eleccion Centro de Estudiantes"
)

// DemoInstitution owns the demo ballot
var DemoInstitution = domain.Institution{
	ID:          DemoInstitutionID,
	Name:        "Colegio Demo",
	Description: "Institucion de prueba",
	Active:      true,
}

// DemoCandidates are the candidates of the demo ballot
var DemoCandidates = []domain.Candidate{
	{ID: "cand-1", InstitutionID: DemoInstitutionID, DisplayName: "Ana Rojas", ListName: "Lista Azul", Biography: "Delegada de curso", Active: true},
	{ID: "cand-2", InstitutionID: DemoInstitutionID, DisplayName: "Bruno Diaz", ListName: "Lista Verde", Biography: "Presidente del club de debate", Active: true},
	{ID: "cand-3", InstitutionID: DemoInstitutionID, DisplayName: "Carla Soto", ListName: "Lista Roja", Biography: "Representante deportiva", Active: true},
}

// SeedDemoCatalog stores one open ballot for local development
func SeedDemoCatalog(catalog *repository.MemoryCatalog, now time.Time) {
	institution := DemoInstitution
	catalog.PutInstitution(&institution)

	ids := make([]string, 0, len(DemoCandidates))
	for i := range DemoCandidates {
		c := DemoCandidates[i]
		c.CreatedAt = now
		c.UpdatedAt = now
		catalog.PutCandidate(&c)
		ids = append(ids, c.ID)
	}

	opens := now.Add(-time.Hour)
	closes := now.Add(7 * 24 * time.Hour)
	catalog.PutBallot(&domain.Ballot{
		ID:            DemoBallotID,
		InstitutionID: DemoInstitutionID,
		Title:         DemoBallotTitle,
		CandidateIDs:  ids,
		OpensAt:       &opens,
		ClosesAt:      &closes,
	})
}
