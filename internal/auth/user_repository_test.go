package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "reseller1",
		DisplayName:  "Reseller One",
		PasswordHash: hash,
		Role:         RoleReseller,
		AreaID:       Int64Ptr(12),
		IsActive:     true,
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(user.ID) != len("usr-")+8 {
		t.Fatalf("Create() should generate a usr- id, got %q", user.ID)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Username != "reseller1" || got.DisplayName != "Reseller One" {
		t.Errorf("got %+v", got)
	}
	if got.Role != RoleReseller {
		t.Errorf("Role = %q, want %q", got.Role, RoleReseller)
	}
	if got.AreaID == nil || *got.AreaID != 12 {
		t.Errorf("AreaID = %v, want 12", got.AreaID)
	}
	if !got.IsActive {
		t.Error("IsActive should be true")
	}
	if got.PasswordHash == "" {
		t.Error("PasswordHash should be populated")
	}
}

func TestUserRepository_NullArea(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "floating", RoleAdmin, nil)

	got, err := NewUserRepository(db).GetByUsername(context.Background(), "floating")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}
	if got.AreaID != nil {
		t.Errorf("AreaID = %v, want nil", *got.AreaID)
	}
}

func TestUserRepository_GetByUsername_NotFound(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	_, err := repo.GetByUsername(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "duplicate", RoleAdmin, Int64Ptr(1))

	hash, _ := HashPassword("password123")
	err := NewUserRepository(db).Create(context.Background(), &User{
		Username:     "duplicate",
		PasswordHash: hash,
		Role:         RoleReseller,
		IsActive:     true,
	})
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	user := seedTestUser(t, db, "mover", RoleReseller, Int64Ptr(1))

	user.AreaID = Int64Ptr(2)
	user.Role = RoleAdmin
	user.IsActive = false
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.AreaID == nil || *got.AreaID != 2 || got.Role != RoleAdmin || got.IsActive {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := repo.Update(ctx, &User{ID: "usr-missing", Role: RoleAdmin}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update() unknown id error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	user := seedTestUser(t, db, "rotator", RoleAdmin, Int64Ptr(1))

	newHash, _ := HashPassword("new-password-123")
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if ok, _ := VerifyPassword("new-password-123", got.PasswordHash); !ok {
		t.Error("new password should verify")
	}

	if err := repo.UpdatePassword(ctx, "usr-missing", newHash); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword() unknown id error = %v", err)
	}
}

func TestUserRepository_ListCountDelete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Fatalf("List() on empty table = %v, want empty non-nil slice", users)
	}

	a := seedTestUser(t, db, "alpha", RoleAdmin, Int64Ptr(1))
	seedTestUser(t, db, "beta", RoleSupport, Int64Ptr(1))

	count, err := repo.Count(ctx)
	if err != nil || count != 2 {
		t.Fatalf("Count() = %d, %v; want 2", count, err)
	}

	users, _ = repo.List(ctx)
	if len(users) != 2 || users[0].Username != "alpha" {
		t.Errorf("List() = %+v", users)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v, want ErrUserNotFound", err)
	}
	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("Count() after delete = %d, want 1", count)
	}
}
