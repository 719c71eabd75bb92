package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/onboarding/internal/model"
)

// PostgresSubmissionRepoはSubmissionRepositoryインターフェースを満たすことを検証
func TestPostgresSubmissionRepo_ImplementsInterface(t *testing.T) {
	var _ SubmissionRepository = (*PostgresSubmissionRepo)(nil)
}

func newTestSubmission(name string) *model.Submission {
	return &model.Submission{
		CompanyName:    name,
		CompanyPhone:   "555-0100",
		CompanyEmail:   "ops@example.com",
		CompanyAddress: "1 Main St",
		City:           "Austin",
		State:          "TX",
		PostalCode:     "78701",
		OwnerFirstName: "Ann",
		OwnerLastName:  "Lee",
		OwnerEmail:     "ann@example.com",
		OwnerPhone:     "555-0101",
	}
}

func TestPostgresSubmissionRepo_Unavailable(t *testing.T) {
	repo := NewPostgresSubmissionRepo(unavailableStore())
	ctx := context.Background()

	if _, err := repo.Create(ctx, newTestSubmission("Acme")); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Create: expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.List(ctx); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("List: expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.FindByID(ctx, 1); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("FindByID: expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.MarkApproved(ctx, 1, "loc", nil, time.Now()); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("MarkApproved: expected ErrUnavailable, got %v", err)
	}
	if _, _, err := repo.MarkRejected(ctx, 1, nil, time.Now()); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("MarkRejected: expected ErrUnavailable, got %v", err)
	}
}

func TestPostgresSubmissionRepo_Integration_CreateAndList(t *testing.T) {
	repo := NewPostgresSubmissionRepo(setupTestStore(t))
	ctx := context.Background()

	first := newTestSubmission("Acme Air")
	id1, err := repo.Create(ctx, first)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != model.SubmissionStatusPending || first.Country != model.DefaultCountry {
		t.Errorf("status/country = %q/%q", first.Status, first.Country)
	}

	id2, err := repo.Create(ctx, newTestSubmission("Beta Plumbing"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id2 == id1 {
		t.Fatalf("ids must be distinct: %d", id1)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != id1 || list[1].ID != id2 {
		t.Errorf("list order = [%d %d], want [%d %d]", list[0].ID, list[1].ID, id1, id2)
	}
	if list[0].CompanyWebsite != nil || list[0].GHLLocationID != nil {
		t.Error("optional fields should be nil")
	}

	missing, err := repo.FindByID(ctx, id2+100)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}
}

func TestPostgresSubmissionRepo_Integration_ApproveOnce(t *testing.T) {
	repo := NewPostgresSubmissionRepo(setupTestStore(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestSubmission("Acme Air"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.MarkApproved(ctx, id, "loc-1", nil, time.Now())
	if err != nil || !ok {
		t.Fatalf("first MarkApproved = %v, %v", ok, err)
	}
	ok, err = repo.MarkApproved(ctx, id, "loc-2", nil, time.Now())
	if err != nil {
		t.Fatalf("second MarkApproved: %v", err)
	}
	if ok {
		t.Error("second approval must not update the row")
	}

	got, err := repo.FindByID(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("FindByID: %v, %v", got, err)
	}
	if got.Status != model.SubmissionStatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
	if got.GHLLocationID == nil || *got.GHLLocationID != "loc-1" {
		t.Errorf("GHLLocationID = %v, want loc-1", got.GHLLocationID)
	}
	if got.ReviewedAt == nil {
		t.Error("ReviewedAt should be set")
	}
}

func TestPostgresSubmissionRepo_Integration_RejectClearsLocation(t *testing.T) {
	repo := NewPostgresSubmissionRepo(setupTestStore(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestSubmission("Acme Air"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.MarkApproved(ctx, id, "loc-1", nil, time.Now()); err != nil {
		t.Fatalf("MarkApproved: %v", err)
	}

	previous, found, err := repo.MarkRejected(ctx, id, nil, time.Now())
	if err != nil || !found {
		t.Fatalf("MarkRejected = %v, %v", found, err)
	}
	if previous == nil || *previous != "loc-1" {
		t.Errorf("previous = %v, want loc-1", previous)
	}

	got, _ := repo.FindByID(ctx, id)
	if got.Status != model.SubmissionStatusRejected || got.GHLLocationID != nil {
		t.Errorf("after reject: status=%q location=%v", got.Status, got.GHLLocationID)
	}

	_, found, err = repo.MarkRejected(ctx, id+100, nil, time.Now())
	if err != nil {
		t.Fatalf("MarkRejected missing: %v", err)
	}
	if found {
		t.Error("expected found=false for missing submission")
	}
}
