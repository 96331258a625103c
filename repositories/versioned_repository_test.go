package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinical-mdr-api/cache"
	"clinical-mdr-api/domain"
	"clinical-mdr-api/internal/testdb"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type VersionedRepositoryTestSuite struct {
	suite.Suite
	db         *gorm.DB
	ctx        context.Context
	groups     LibraryItemRepository[models.ActivityGroupValue]
	subGroups  LibraryItemRepository[models.ActivitySubGroupValue]
	libraries  LibraryRepository
	itemCache  *cache.ItemCache
	sponsorLib domain.LibraryVO
}

func (s *VersionedRepositoryTestSuite) SetupTest() {
	s.db = testdb.Open(s.T())
	s.ctx = context.Background()
	m := metrics.NewMetrics()
	s.itemCache = cache.New(100, time.Minute, m)
	locks := NewLockTable()
	s.groups = NewLibraryItemRepository[models.ActivityGroupValue](s.db, ActivityGroupCapability{}, s.itemCache, locks, m, nil)
	s.subGroups = NewLibraryItemRepository[models.ActivitySubGroupValue](s.db, ActivitySubGroupCapability{}, s.itemCache, locks, m, nil)
	s.libraries = NewLibraryRepository(s.db)

	s.Require().NoError(s.libraries.Create(s.ctx, &models.Library{Name: "Sponsor", IsEditable: true}))
	s.sponsorLib = domain.LibraryVO{Name: "Sponsor", IsEditable: true}
}

func (s *VersionedRepositoryTestSuite) createGroup(name string) *domain.VersionedItem[models.ActivityGroupValue] {
	item, err := domain.NewDraftItem(s.sponsorLib, models.ActivityGroupValue{Name: name}, "alice", time.Now().UTC())
	s.Require().NoError(err)
	saved, err := s.groups.Save(s.ctx, item)
	s.Require().NoError(err)
	return saved
}

func (s *VersionedRepositoryTestSuite) approve(uid string) *domain.VersionedItem[models.ActivityGroupValue] {
	item, err := s.groups.Update(s.ctx, uid, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
		return item.Approve("alice", time.Now().UTC())
	})
	s.Require().NoError(err)
	return item
}

func (s *VersionedRepositoryTestSuite) TestCreateAssignsSequentialUIDs() {
	first := s.createGroup("Vital signs")
	second := s.createGroup("Laboratory")

	s.Equal("ActivityGroup_000001", first.UID)
	s.Equal("ActivityGroup_000002", second.UID)
	s.Equal("0.1", first.Metadata.Version())
	s.Equal(domain.StatusDraft, first.Metadata.Status)
	s.NotNil(first.Closure())
}

func (s *VersionedRepositoryTestSuite) TestFindByUIDMissingReturnsNil() {
	item, err := s.groups.FindByUID(s.ctx, "ActivityGroup_999999", FindOptions{})
	s.NoError(err)
	s.Nil(item)
}

func (s *VersionedRepositoryTestSuite) TestEditDraftCreatesNewMinorVersion() {
	created := s.createGroup("Vital signs")

	updated, err := s.groups.Update(s.ctx, created.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
		_, err := item.EditDraft("bob", "typo", models.ActivityGroupValue{Name: "Vital Signs"}, time.Now().UTC())
		return err
	})
	s.Require().NoError(err)
	s.Equal("0.2", updated.Metadata.Version())
	s.Equal("Vital Signs", updated.Value.Name)

	history, err := s.groups.GetAllVersions(s.ctx, created.UID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("0.2", history[0].Metadata.Version())
	s.Nil(history[0].Metadata.EndDate)
	s.Equal("0.1", history[1].Metadata.Version())
	s.NotNil(history[1].Metadata.EndDate)
}

func (s *VersionedRepositoryTestSuite) TestUnchangedEditIsNoop() {
	created := s.createGroup("Vital signs")

	updated, err := s.groups.Update(s.ctx, created.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
		_, err := item.EditDraft("bob", "nothing", models.ActivityGroupValue{Name: "Vital signs"}, time.Now().UTC())
		return err
	})
	s.Require().NoError(err)
	s.Equal("0.1", updated.Metadata.Version())

	history, err := s.groups.GetAllVersions(s.ctx, created.UID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *VersionedRepositoryTestSuite) TestValueIsReusedWhenContentReturns() {
	created := s.createGroup("A")
	edit := func(name string) {
		_, err := s.groups.Update(s.ctx, created.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
			_, err := item.EditDraft("bob", "rename", models.ActivityGroupValue{Name: name}, time.Now().UTC())
			return err
		})
		s.Require().NoError(err)
	}
	edit("B")
	edit("A")

	var values int64
	s.Require().NoError(s.db.Model(&models.VersionValue{}).Count(&values).Error)
	s.Equal(int64(2), values)

	var rels int64
	s.Require().NoError(s.db.Model(&models.VersionRelationship{}).Count(&rels).Error)
	s.Equal(int64(3), rels)
}

func (s *VersionedRepositoryTestSuite) TestFindByVersionStatusAndDate() {
	created := s.createGroup("Vital signs")
	beforeApproval := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)
	s.approve(created.UID)

	draft, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{Version: "0.1"})
	s.Require().NoError(err)
	s.Require().NotNil(draft)
	s.Equal(domain.StatusDraft, draft.Metadata.Status)

	final, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{Status: domain.StatusFinal})
	s.Require().NoError(err)
	s.Require().NotNil(final)
	s.Equal("1.0", final.Metadata.Version())

	past, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{AtDate: &beforeApproval})
	s.Require().NoError(err)
	s.Require().NotNil(past)
	s.Equal("0.1", past.Metadata.Version())

	retired, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{Status: domain.StatusRetired})
	s.NoError(err)
	s.Nil(retired)

	_, err = s.groups.FindByUID(s.ctx, created.UID, FindOptions{Version: "one"})
	var valueErr *domain.ValueError
	s.True(errors.As(err, &valueErr))
}

func (s *VersionedRepositoryTestSuite) TestRelationsRoundTripAndValidation() {
	group := s.createGroup("Vital signs")

	sub, err := domain.NewDraftItem(s.sponsorLib, models.ActivitySubGroupValue{
		Name:              "Blood pressure",
		ActivityGroupUIDs: []string{group.UID},
	}, "alice", time.Now().UTC())
	s.Require().NoError(err)
	saved, err := s.subGroups.Save(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal([]string{group.UID}, saved.Value.ActivityGroupUIDs)

	var stored models.VersionValue
	s.Require().NoError(s.db.Where("root_id = ?", saved.Closure().RootID).First(&stored).Error)
	s.NotContains(string(stored.Content), group.UID)

	dangling, err := domain.NewDraftItem(s.sponsorLib, models.ActivitySubGroupValue{
		Name:              "Heart rate",
		ActivityGroupUIDs: []string{"ActivityGroup_404404"},
	}, "alice", time.Now().UTC())
	s.Require().NoError(err)
	_, err = s.subGroups.Save(s.ctx, dangling)
	var business models.ErrorBusinessLogic
	s.Require().True(errors.As(err, &business))
	s.Equal("The object with uid (ActivityGroup_404404) does not exist.", business.Message)
}

func (s *VersionedRepositoryTestSuite) TestSoftDelete() {
	created := s.createGroup("Vital signs")

	_, err := s.groups.Update(s.ctx, created.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
		return item.SoftDelete()
	})
	s.Require().NoError(err)

	item, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{})
	s.NoError(err)
	s.Nil(item)

	items, total, err := s.groups.List(s.ctx, ListFilter{})
	s.NoError(err)
	s.Empty(items)
	s.Zero(total)
}

func (s *VersionedRepositoryTestSuite) TestSoftDeleteRefusedWhenReferencedByApprovedItem() {
	group := s.createGroup("Vital signs")
	sub, err := domain.NewDraftItem(s.sponsorLib, models.ActivitySubGroupValue{
		Name:              "Blood pressure",
		ActivityGroupUIDs: []string{group.UID},
	}, "alice", time.Now().UTC())
	s.Require().NoError(err)
	saved, err := s.subGroups.Save(s.ctx, sub)
	s.Require().NoError(err)
	_, err = s.subGroups.Update(s.ctx, saved.UID, func(item *domain.VersionedItem[models.ActivitySubGroupValue]) error {
		return item.Approve("alice", time.Now().UTC())
	})
	s.Require().NoError(err)

	_, err = s.groups.Update(s.ctx, group.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
		return item.SoftDelete()
	})
	var business models.ErrorBusinessLogic
	s.True(errors.As(err, &business))
}

func (s *VersionedRepositoryTestSuite) TestStaleWriteIsRejected() {
	created := s.createGroup("Vital signs")

	stale, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{ForUpdate: true})
	s.Require().NoError(err)

	s.approve(created.UID)

	s.Require().NoError(stale.Approve("bob", time.Now().UTC()))
	_, err = s.groups.Save(s.ctx, stale)
	var conflict models.ErrorConflict
	s.True(errors.As(err, &conflict))
}

func (s *VersionedRepositoryTestSuite) TestConcurrentUpdatesSerialise() {
	created := s.createGroup("Vital signs")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.groups.Update(s.ctx, created.UID, func(item *domain.VersionedItem[models.ActivityGroupValue]) error {
				_, err := item.EditDraft("bob", "rename", models.ActivityGroupValue{Name: string(rune('A' + i))}, time.Now().UTC())
				return err
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	latest, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{})
	s.Require().NoError(err)
	s.Equal("0.6", latest.Metadata.Version())
}

func (s *VersionedRepositoryTestSuite) TestCacheIsInvalidatedOnWrite() {
	created := s.createGroup("Vital signs")

	_, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{})
	s.Require().NoError(err)
	s.Equal(1, s.itemCache.Len())

	s.approve(created.UID)
	s.Equal(0, s.itemCache.Len())

	latest, err := s.groups.FindByUID(s.ctx, created.UID, FindOptions{})
	s.Require().NoError(err)
	s.Equal(domain.StatusFinal, latest.Metadata.Status)
}

func (s *VersionedRepositoryTestSuite) TestListFiltersAndPages() {
	for _, name := range []string{"A", "B", "C"} {
		s.createGroup(name)
	}
	s.approve("ActivityGroup_000002")

	items, total, err := s.groups.List(s.ctx, ListFilter{Offset: 0, Limit: 2})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Len(items, 2)

	finals, total, err := s.groups.List(s.ctx, ListFilter{Status: domain.StatusFinal})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal("ActivityGroup_000002", finals[0].UID)

	none, total, err := s.groups.List(s.ctx, ListFilter{LibraryName: "CDISC"})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(none)
}

func TestVersionedRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(VersionedRepositoryTestSuite))
}
