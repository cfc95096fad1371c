package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
)

func TestRegister_CreatesActiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Register(ctx, RegisterInput{
		Email:       "Student@RCA.ac.rw",
		Password:    "Student@123",
		FirstName:   " Eric ",
		LastName:    "Niyonzima",
		Role:        "student",
		Phone:       "+250788000000",
		DateOfBirth: "2008-05-14",
		Gender:      "male",
	})
	require.NoError(t, err)
	assert.Equal(t, "student@rca.ac.rw", res.User.Email)
	assert.Equal(t, domain.StatusActive, res.User.Status)
	assert.Equal(t, []string{"STUDENT"}, res.Roles)
	assert.Contains(t, res.Permissions, "projects:write")
	assert.True(t, env.svc.ValidateToken(ctx, res.AccessToken))

	id, err := env.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	p, err := env.svc.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Eric Niyonzima", p.FullName())
	assert.Equal(t, "+250788000000", p.Phone)
	assert.Equal(t, domain.GenderMale, p.Gender)
	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, "2008-05-14", p.DateOfBirth.Format(domain.DateLayout))

	env.svc.Wait()
	evs := env.pub.ofType(notify.EventUserRegistered)
	require.Len(t, evs, 1)
	assert.Equal(t, []string{"STUDENT"}, decodeData[notify.UserEvent](t, evs[0].Event).Roles)
}

func TestRegister_Rejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerTeacher(t)

	valid := RegisterInput{
		Email:     "new@rca.ac.rw",
		Password:  "Parent@123",
		FirstName: "A",
		LastName:  "B",
		Role:      "PARENT",
	}

	tests := []struct {
		name      string
		mutate    func(*RegisterInput)
		wantErr   error
		wantField string
	}{
		{"duplicate email", func(in *RegisterInput) { in.Email = "TEACHER@rca.ac.rw" }, ErrConflict, ""},
		{"weak password", func(in *RegisterInput) { in.Password = "password" }, ErrValidation, "password"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = " " }, ErrValidation, "firstName"},
		{"admin role", func(in *RegisterInput) { in.Role = "SUPER_ADMIN" }, ErrValidation, "role"},
		{"unknown role", func(in *RegisterInput) { in.Role = "JANITOR" }, ErrValidation, "role"},
		{"bad gender", func(in *RegisterInput) { in.Gender = "robot" }, ErrValidation, "gender"},
		{"bad date", func(in *RegisterInput) { in.DateOfBirth = "14/05/2008" }, ErrValidation, "dateOfBirth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := env.svc.Register(ctx, in)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantField != "" {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Contains(t, ve.Fields, tt.wantField)
			}
		})
	}
}

func TestUpdateProfile_Partial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.registerTeacher(t)
	id, err := env.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)

	phone, gender := "+250722000000", "female"
	p, err := env.svc.UpdateProfile(ctx, id, ProfileInput{Phone: &phone, Gender: &gender})
	require.NoError(t, err)
	assert.Equal(t, "Jane", p.FirstName, "untouched")
	assert.Equal(t, phone, p.Phone)
	assert.Equal(t, domain.GenderFemale, p.Gender)
	assert.Equal(t, []string{"TEACHER"}, p.Roles)

	dob := "1990-01-31"
	p, err = env.svc.UpdateProfile(ctx, id, ProfileInput{DateOfBirth: &dob})
	require.NoError(t, err)
	require.NotNil(t, p.DateOfBirth)
	assert.True(t, p.DateOfBirth.Equal(time.Date(1990, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, phone, p.Phone)
}

func TestUpdateProfile_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.registerTeacher(t)
	id, err := env.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)

	blank := "  "
	_, err = env.svc.UpdateProfile(ctx, id, ProfileInput{FirstName: &blank})
	require.ErrorIs(t, err, ErrValidation)

	long := string(make([]rune, 101))
	_, err = env.svc.UpdateProfile(ctx, id, ProfileInput{LastName: &long})
	require.ErrorIs(t, err, ErrValidation)

	bad := "someday"
	_, err = env.svc.UpdateProfile(ctx, id, ProfileInput{DateOfBirth: &bad})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.GetProfile(ctx, nil)
	require.ErrorIs(t, err, ErrInvalidToken)
}
