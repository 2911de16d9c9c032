//go:build integration

package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"curio/internal/archive/models"
	"curio/internal/archive/registry"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	"curio/pkg/testutil/containers"
)

type PostgresRegistrySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	reg      *registry.Postgres
	ctx      context.Context
}

func TestPostgresRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRegistrySuite))
}

func (s *PostgresRegistrySuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.reg = registry.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.reg.EnsureSchema(s.ctx))
}

func (s *PostgresRegistrySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(s.ctx))
}

func (s *PostgresRegistrySuite) draft(title, category string) models.ArchiveDraft {
	return models.ArchiveDraft{
		Title:      title,
		Content:    "Qm1",
		Category:   category,
		Visibility: models.VisibilityPrivate,
		Tags:       []string{"heritage"},
	}
}

func (s *PostgresRegistrySuite) TestCreateGetRoundTrip() {
	id, err := s.reg.Create(s.ctx, "0xalice", s.draft("Bronze Vessels", "artifact"))
	s.Require().NoError(err)
	s.Equal(domain.ArchiveID(1), id)

	a, err := s.reg.Get(s.ctx, "0xalice", id)
	s.Require().NoError(err)
	s.Equal("Bronze Vessels", a.Title)
	s.Equal([]string{"heritage"}, a.Tags)
	s.Equal(domain.Identity("0xalice"), a.Owner)
}

func (s *PostgresRegistrySuite) TestIDsSurviveDeletion() {
	id1, err := s.reg.Create(s.ctx, "0xalice", s.draft("First", "artifact"))
	s.Require().NoError(err)
	id2, err := s.reg.Create(s.ctx, "0xalice", s.draft("Second", "artifact"))
	s.Require().NoError(err)
	s.Require().NoError(s.reg.Delete(s.ctx, "0xalice", id2))

	id3, err := s.reg.Create(s.ctx, "0xalice", s.draft("Third", "artifact"))
	s.Require().NoError(err)
	s.Greater(id3, id2)
	s.Greater(id2, id1)
}

func (s *PostgresRegistrySuite) TestGrantRevokeRoundTrip() {
	id, err := s.reg.Create(s.ctx, "0xalice", s.draft("T1", "artifact"))
	s.Require().NoError(err)

	_, err = s.reg.Get(s.ctx, "0xbob", id)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.reg.Grant(s.ctx, "0xalice", id, "0xbob",
		domain.NewCapabilitySet(domain.CapabilityView)))

	a, err := s.reg.Get(s.ctx, "0xbob", id)
	s.Require().NoError(err)
	s.Equal(id, a.ID)

	s.Require().NoError(s.reg.Revoke(s.ctx, "0xalice", id, "0xbob"))

	_, err = s.reg.Get(s.ctx, "0xbob", id)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *PostgresRegistrySuite) TestDeleteCascadesGrants() {
	id, err := s.reg.Create(s.ctx, "0xalice", s.draft("Doomed", "artifact"))
	s.Require().NoError(err)
	s.Require().NoError(s.reg.Grant(s.ctx, "0xalice", id, "0xbob",
		domain.NewCapabilitySet(domain.CapabilityView)))

	s.Require().NoError(s.reg.Delete(s.ctx, "0xalice", id))

	var grants int
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM archive_grants WHERE archive_id = $1`, int64(id)).Scan(&grants))
	s.Zero(grants, "grants never outlive their archive")

	err = s.reg.Grant(s.ctx, "0xalice", id, "0xbob", domain.NewCapabilitySet(domain.CapabilityView))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PostgresRegistrySuite) TestIndexedLookupsAndSearch() {
	d := s.draft("文物一", "文物")
	d.Visibility = models.VisibilityPublic
	id1, err := s.reg.Create(s.ctx, "0xalice", d)
	s.Require().NoError(err)
	d2 := s.draft("文物二", "文物")
	id2, err := s.reg.Create(s.ctx, "0xbob", d2)
	s.Require().NoError(err)
	_, err = s.reg.Create(s.ctx, "0xalice", s.draft("录音", "音频"))
	s.Require().NoError(err)

	relics, err := s.reg.ListByCategory(s.ctx, "文物")
	s.Require().NoError(err)
	s.Equal([]domain.ArchiveID{id1, id2}, relics)

	owned, err := s.reg.ListByOwner(s.ctx, "0xbob")
	s.Require().NoError(err)
	s.Equal([]domain.ArchiveID{id2}, owned)

	cat := "文物"
	results, err := s.reg.Search(s.ctx, "0xcarol", "文物", &cat)
	s.Require().NoError(err)
	s.Len(results, 1, "only the public archive is visible to a stranger")
	s.Equal(id1, results[0].ID)

	total, err := s.reg.Total(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, total)
}

func (s *PostgresRegistrySuite) TestUpdateIsAtomic() {
	id, err := s.reg.Create(s.ctx, "0xalice", s.draft("Atomic", "artifact"))
	s.Require().NoError(err)

	blank := " "
	year := 1046
	_, err = s.reg.Update(s.ctx, "0xalice", id, models.ArchivePatch{Title: &blank, Year: &year})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	a, err := s.reg.Get(s.ctx, "0xalice", id)
	s.Require().NoError(err)
	s.Equal("Atomic", a.Title)
	s.Zero(a.Year)
}

func (s *PostgresRegistrySuite) TestCounterInvariant() {
	_, err := s.reg.Create(s.ctx, "0xalice", s.draft("One", "artifact"))
	s.Require().NoError(err)
	_, err = s.reg.Create(s.ctx, "0xalice", s.draft("Two", "artifact"))
	s.Require().NoError(err)

	var next, maxID int64
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx,
		`SELECT next_id FROM archive_counter`).Scan(&next))
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx,
		`SELECT COALESCE(MAX(id), 0) FROM archives`).Scan(&maxID))
	s.GreaterOrEqual(next, maxID+1)
}
