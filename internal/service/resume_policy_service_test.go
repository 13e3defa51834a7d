package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

func TestResumePolicy(t *testing.T) {
	db := newMemoryDB()
	db.collegi["deg-med"] = "CL003"
	db.collegi["deg-inf"] = "CL001"
	svc := NewResumePolicyService(memoryRefs{db}, nil, nil)

	cases := []struct {
		name     string
		student  *models.Student
		required bool
	}{
		{name: "allow-listed collegio", student: &models.Student{ID: "s1", DegreeID: strPtr("deg-med")}, required: true},
		{name: "other collegio", student: &models.Student{ID: "s2", DegreeID: strPtr("deg-inf")}, required: false},
		{name: "unknown degree", student: &models.Student{ID: "s3", DegreeID: strPtr("deg-x")}, required: false},
		{name: "no degree", student: &models.Student{ID: "s4"}, required: false},
		{name: "nil student", student: nil, required: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.required, svc.IsResumeRequired(context.Background(), tc.student))
		})
	}
}

func TestResumePolicyCustomCollegi(t *testing.T) {
	db := newMemoryDB()
	db.collegi["deg-inf"] = "CL001"
	db.students["s1"] = models.Student{ID: "s1", DegreeID: strPtr("deg-inf")}
	svc := NewResumePolicyService(memoryRefs{db}, []string{"CL001", "CL009"}, nil)

	resp, err := svc.RequiredResume(context.Background(), studentClaims("s1"))
	require.NoError(t, err)
	assert.True(t, resp.RequiredResume)
	assert.Equal(t, "s1", resp.StudentID)
}
