package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	"curio/pkg/requestcontext"
)

const (
	alice = domain.Identity("0xalice")
	bob   = domain.Identity("0xbob")
	carol = domain.Identity("0xcarol")
)

type RegistrySuite struct {
	suite.Suite
	reg *InMemory
	ctx context.Context
}

func (s *RegistrySuite) SetupTest() {
	s.reg = NewInMemory()
	s.ctx = context.Background()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) draft(title string) models.ArchiveDraft {
	return models.ArchiveDraft{
		Title:      title,
		Content:    "Qm1",
		Category:   "artifact",
		Visibility: models.VisibilityPrivate,
	}
}

func (s *RegistrySuite) create(owner domain.Identity, title string) domain.ArchiveID {
	id, err := s.reg.Create(s.ctx, owner, s.draft(title))
	s.Require().NoError(err)
	return id
}

func (s *RegistrySuite) TestCreateAndGet() {
	s.Run("create is immediately visible to the owner", func() {
		id := s.create(alice, "Bronze Vessels")
		a, err := s.reg.Get(s.ctx, alice, id)
		s.Require().NoError(err)
		s.Equal("Bronze Vessels", a.Title)
		s.Equal(alice, a.Owner)
	})

	s.Run("rejects draft without content locator", func() {
		d := s.draft("No Content")
		d.Content = ""
		_, err := s.reg.Create(s.ctx, alice, d)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("failed create consumes no id", func() {
		before := s.create(alice, "Before")
		d := s.draft("")
		_, err := s.reg.Create(s.ctx, alice, d)
		s.Require().Error(err)
		after := s.create(alice, "After")
		s.Equal(before+1, after)
	})

	s.Run("get of unknown id is NotFound", func() {
		_, err := s.reg.Get(s.ctx, alice, 9999)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("stores createdAt from the request clock", func() {
		now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		id, err := s.reg.Create(requestcontext.WithTime(s.ctx, now), alice, s.draft("Clocked"))
		s.Require().NoError(err)
		a, err := s.reg.Get(s.ctx, alice, id)
		s.Require().NoError(err)
		s.True(a.CreatedAt.Equal(now))
	})
}

func (s *RegistrySuite) TestIDsNeverReused() {
	id1 := s.create(alice, "First")
	id2 := s.create(alice, "Second")
	id3 := s.create(alice, "Third")
	s.Require().NoError(s.reg.Delete(s.ctx, alice, id2))

	id4 := s.create(alice, "Fourth")
	s.Greater(id4, id3, "new id strictly greater than every issued id")
	s.Greater(id4, id2, "deleted id is never reassigned")
	s.Equal(domain.ArchiveID(1), id1)
}

func (s *RegistrySuite) TestVisibilityRules() {
	s.Run("stranger cannot view a private archive", func() {
		id := s.create(alice, "Private Scrolls")
		_, err := s.reg.Get(s.ctx, bob, id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anyone can view a public archive", func() {
		d := s.draft("Public Murals")
		d.Visibility = models.VisibilityPublic
		id, err := s.reg.Create(s.ctx, alice, d)
		s.Require().NoError(err)

		a, err := s.reg.Get(s.ctx, bob, id)
		s.Require().NoError(err)
		s.Equal(id, a.ID)
	})

	s.Run("public visibility grants view only, not edit or delete", func() {
		d := s.draft("Public Murals II")
		d.Visibility = models.VisibilityPublic
		id, err := s.reg.Create(s.ctx, alice, d)
		s.Require().NoError(err)

		title := "Defaced"
		_, err = s.reg.Update(s.ctx, bob, id, models.ArchivePatch{Title: &title})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.reg.Delete(s.ctx, bob, id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// TestGrantRevokeScenario is the reference grant/revoke round trip: a View
// grant flips visibility for that grantee only, and revoke restores the
// exact pre-grant outcome.
func (s *RegistrySuite) TestGrantRevokeScenario() {
	id := s.create(alice, "T1")

	_, err := s.reg.Get(s.ctx, bob, id)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityView)))

	a, err := s.reg.Get(s.ctx, bob, id)
	s.Require().NoError(err)
	s.Equal(id, a.ID)

	// the grant is scoped to bob, not global
	_, err = s.reg.Get(s.ctx, carol, id)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.reg.Revoke(s.ctx, alice, id, bob))

	_, err = s.reg.Get(s.ctx, bob, id)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *RegistrySuite) TestGrantRules() {
	id := s.create(alice, "Granted")

	s.Run("only the owner may grant", func() {
		s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityEdit)))
		// an edit-holder cannot delegate
		err := s.reg.Grant(s.ctx, bob, id, carol, domain.NewCapabilitySet(domain.CapabilityView))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("grant overwrites the previous entry", func() {
		s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityView)))
		grants, err := s.reg.Grants(s.ctx, alice, id)
		s.Require().NoError(err)
		s.Equal(domain.NewCapabilitySet(domain.CapabilityView), grants[bob])
	})

	s.Run("empty set grant is a revoke", func() {
		s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, 0))
		grants, err := s.reg.Grants(s.ctx, alice, id)
		s.Require().NoError(err)
		_, present := grants[bob]
		s.False(present, "empty grants are normalized away")
	})

	s.Run("rejects grants to the owner", func() {
		err := s.reg.Grant(s.ctx, alice, id, alice, domain.NewCapabilitySet(domain.CapabilityView))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects capability sets outside the known mask", func() {
		err := s.reg.Grant(s.ctx, alice, id, bob, domain.CapabilitySet(0b1000_0000))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("revoke of absent grant is a success", func() {
		s.Require().NoError(s.reg.Revoke(s.ctx, alice, id, carol))
	})

	s.Run("grant listing is owner-only", func() {
		_, err := s.reg.Grants(s.ctx, bob, id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RegistrySuite) TestOwnerCannotBeLockedOut() {
	id := s.create(alice, "Fortress")
	// no grant/revoke sequence touches the owner's capabilities
	s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.AllCapabilities))
	s.Require().NoError(s.reg.Revoke(s.ctx, alice, id, bob))

	a, err := s.reg.Get(s.ctx, alice, id)
	s.Require().NoError(err)
	title := "Still Mine"
	_, err = s.reg.Update(s.ctx, alice, a.ID, models.ArchivePatch{Title: &title})
	s.Require().NoError(err)
	s.Require().NoError(s.reg.Delete(s.ctx, alice, a.ID))
}

func (s *RegistrySuite) TestUpdate() {
	s.Run("edit grant allows update", func() {
		id := s.create(alice, "Edited")
		s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityEdit)))

		title := "Edited by Bob"
		updated, err := s.reg.Update(s.ctx, bob, id, models.ArchivePatch{Title: &title})
		s.Require().NoError(err)
		s.Equal("Edited by Bob", updated.Title)

		a, err := s.reg.Get(s.ctx, alice, id)
		s.Require().NoError(err)
		s.Equal("Edited by Bob", a.Title)
	})

	s.Run("edit-only grantee gets the updated archive back", func() {
		id := s.create(alice, "Edit Without View")
		s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityEdit)))

		title := "Rewritten"
		updated, err := s.reg.Update(s.ctx, bob, id, models.ArchivePatch{Title: &title})
		s.Require().NoError(err)
		s.Equal("Rewritten", updated.Title)

		// bob still cannot read it back through Get
		_, err = s.reg.Get(s.ctx, bob, id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid field aborts the whole patch", func() {
		id := s.create(alice, "Atomic")
		blank := "  "
		year := 1900
		_, err := s.reg.Update(s.ctx, alice, id, models.ArchivePatch{Title: &blank, Year: &year})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		a, getErr := s.reg.Get(s.ctx, alice, id)
		s.Require().NoError(getErr)
		s.Equal("Atomic", a.Title, "no partial effect")
		s.Zero(a.Year)
	})

	s.Run("category change moves the index entry", func() {
		id := s.create(alice, "Recategorized")
		cat := "audio"
		_, err := s.reg.Update(s.ctx, alice, id, models.ArchivePatch{Category: &cat})
		s.Require().NoError(err)

		old, err := s.reg.ListByCategory(s.ctx, "artifact")
		s.Require().NoError(err)
		s.NotContains(old, id)
		moved, err := s.reg.ListByCategory(s.ctx, "audio")
		s.Require().NoError(err)
		s.Contains(moved, id)
	})

	s.Run("update of unknown id is NotFound", func() {
		title := "x"
		_, err := s.reg.Update(s.ctx, alice, 9999, models.ArchivePatch{Title: &title})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrySuite) TestDeleteCascadesGrants() {
	id := s.create(alice, "Doomed")
	s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityView)))

	s.Require().NoError(s.reg.Delete(s.ctx, alice, id))

	_, err := s.reg.Get(s.ctx, bob, id)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	err = s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityView))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	err = s.reg.Revoke(s.ctx, alice, id, bob)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	owned, err := s.reg.ListByOwner(s.ctx, alice)
	s.Require().NoError(err)
	s.NotContains(owned, id)
}

func (s *RegistrySuite) TestDeleteRequiresCapability() {
	id := s.create(alice, "Protected")
	err := s.reg.Delete(s.ctx, bob, id)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.reg.Grant(s.ctx, alice, id, bob, domain.NewCapabilitySet(domain.CapabilityDelete)))
	s.Require().NoError(s.reg.Delete(s.ctx, bob, id))
}

func (s *RegistrySuite) TestIndexedLookups() {
	d1 := s.draft("文物一")
	d1.Category = "文物"
	d2 := s.draft("文物二")
	d2.Category = "文物"
	d3 := s.draft("录音")
	d3.Category = "音频"

	id1, err := s.reg.Create(s.ctx, alice, d1)
	s.Require().NoError(err)
	id2, err := s.reg.Create(s.ctx, bob, d2)
	s.Require().NoError(err)
	_, err = s.reg.Create(s.ctx, alice, d3)
	s.Require().NoError(err)

	relics, err := s.reg.ListByCategory(s.ctx, "文物")
	s.Require().NoError(err)
	s.Equal([]domain.ArchiveID{id1, id2}, relics)

	again, err := s.reg.ListByCategory(s.ctx, "文物")
	s.Require().NoError(err)
	s.Equal(relics, again, "stable order across repeated calls")

	none, err := s.reg.ListByCategory(s.ctx, "视频")
	s.Require().NoError(err)
	s.Empty(none)

	owned, err := s.reg.ListByOwner(s.ctx, bob)
	s.Require().NoError(err)
	s.Equal([]domain.ArchiveID{id2}, owned)

	total, err := s.reg.Total(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, total)
}

func (s *RegistrySuite) TestAllIgnoresVisibility() {
	s.create(alice, "private one")
	d := s.draft("public two")
	d.Visibility = models.VisibilityPublic
	_, err := s.reg.Create(s.ctx, bob, d)
	s.Require().NoError(err)

	all, err := s.reg.All(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(domain.ArchiveID(1), all[0].ID)
	s.Equal(domain.ArchiveID(2), all[1].ID)
	s.Equal("private one", all[0].Title)
}

func (s *RegistrySuite) TestSearch() {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mk := func(owner domain.Identity, title, desc, category string, vis models.Visibility, tags []string, offset time.Duration) domain.ArchiveID {
		d := models.ArchiveDraft{Title: title, Description: desc, Content: "Qm1", Category: category, Visibility: vis, Tags: tags}
		id, err := s.reg.Create(requestcontext.WithTime(s.ctx, base.Add(offset)), owner, d)
		s.Require().NoError(err)
		return id
	}

	idOld := mk(alice, "Bronze Bells", "ritual instruments", "artifact", models.VisibilityPublic, nil, 0)
	idNew := mk(alice, "Bronze Mirrors", "han dynasty", "artifact", models.VisibilityPublic, nil, time.Hour)
	idHidden := mk(alice, "Bronze Hoard", "undisclosed", "artifact", models.VisibilityPrivate, nil, 2*time.Hour)
	mk(alice, "Folk Songs", "field recordings", "audio", models.VisibilityPublic, []string{"bronze age"}, 3*time.Hour)

	s.Run("filters by visibility", func() {
		results, err := s.reg.Search(s.ctx, bob, "bronze", nil)
		s.Require().NoError(err)
		ids := resultIDs(results)
		s.NotContains(ids, idHidden)
		s.Contains(ids, idOld)
	})

	s.Run("matches tags and orders reverse-chronologically", func() {
		results, err := s.reg.Search(s.ctx, bob, "bronze", nil)
		s.Require().NoError(err)
		s.Require().Len(results, 3)
		s.True(results[0].CreatedAt.After(results[1].CreatedAt) || results[0].CreatedAt.Equal(results[1].CreatedAt))
		s.Equal("Folk Songs", results[0].Title, "tag match included, newest first")
	})

	s.Run("restricts to category", func() {
		cat := "artifact"
		results, err := s.reg.Search(s.ctx, bob, "bronze", &cat)
		s.Require().NoError(err)
		s.Equal([]domain.ArchiveID{idNew, idOld}, resultIDs(results))
	})

	s.Run("owner sees private archives", func() {
		results, err := s.reg.Search(s.ctx, alice, "hoard", nil)
		s.Require().NoError(err)
		s.Equal([]domain.ArchiveID{idHidden}, resultIDs(results))
	})

	s.Run("no matches is an empty result", func() {
		results, err := s.reg.Search(s.ctx, bob, "porcelain", nil)
		s.Require().NoError(err)
		s.Empty(results)
	})
}

// TestConcurrentMutations hammers the registry from many goroutines; the race
// detector and the final consistency checks catch torn state.
func (s *RegistrySuite) TestConcurrentMutations() {
	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := alice
			if w%2 == 1 {
				owner = bob
			}
			for i := 0; i < perWorker; i++ {
				id, err := s.reg.Create(s.ctx, owner, s.draft("concurrent"))
				if err != nil {
					s.T().Error(err)
					return
				}
				_ = s.reg.Grant(s.ctx, owner, id, carol, domain.NewCapabilitySet(domain.CapabilityView))
				if i%3 == 0 {
					_ = s.reg.Delete(s.ctx, owner, id)
				} else {
					_ = s.reg.Revoke(s.ctx, owner, id, carol)
				}
			}
		}(w)
	}
	wg.Wait()

	total, err := s.reg.Total(s.ctx)
	s.Require().NoError(err)

	aliceIDs, err := s.reg.ListByOwner(s.ctx, alice)
	s.Require().NoError(err)
	bobIDs, err := s.reg.ListByOwner(s.ctx, bob)
	s.Require().NoError(err)
	s.Equal(total, len(aliceIDs)+len(bobIDs), "owner index agrees with primary store")

	for _, id := range append(aliceIDs, bobIDs...) {
		_, err := s.reg.Get(s.ctx, alice, id)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.T().Errorf("indexed id %s not readable: %v", id, err)
		}
	}
}

func resultIDs(archives []*models.Archive) []domain.ArchiveID {
	ids := make([]domain.ArchiveID, 0, len(archives))
	for _, a := range archives {
		ids = append(ids, a.ID)
	}
	return ids
}
