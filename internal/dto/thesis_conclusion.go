package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// TeacherRef is a co-supervisor reference; clients send either the bare id or
// a teacher object.
type TeacherRef struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts "id", 123 or {"id": ...}.
func (r *TeacherRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		data = obj.ID
	}
	id, err := scalarString(data)
	if err != nil {
		return fmt.Errorf("co-supervisor id: %w", err)
	}
	r.ID = id
	return nil
}

// KeywordInput is either a catalogue keyword id or free text.
type KeywordInput struct {
	ID   *int64
	Text string
}

// UnmarshalJSON accepts 12, "free text" or {"id": 12, "keyword": "..."}.
func (k *KeywordInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("empty keyword")
	case data[0] == '"':
		return json.Unmarshal(data, &k.Text)
	case data[0] == '{':
		var obj struct {
			ID      *int64 `json:"id"`
			Keyword string `json:"keyword"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.ID == nil || *obj.ID <= 0 {
			k.Text = obj.Keyword
			return nil
		}
		k.ID = obj.ID
		return nil
	default:
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("keyword id: %w", err)
		}
		k.ID = &id
		return nil
	}
}

// SDGInput tags the thesis with a goal at a level.
type SDGInput struct {
	GoalID int64            `validate:"gt=0"`
	Level  *models.SDGLevel `validate:"omitempty,oneof=primary secondary"`
}

// UnmarshalJSON accepts 3 or {"goal_id"|"goalId"|"id": 3, "level": "primary"}.
func (s *SDGInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			GoalIDSnake json.RawMessage  `json:"goal_id"`
			GoalID      json.RawMessage  `json:"goalId"`
			ID          json.RawMessage  `json:"id"`
			Level       *models.SDGLevel `json:"level"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		raw := firstPresent(obj.GoalIDSnake, obj.GoalID, obj.ID)
		id, err := scalarInt(raw)
		if err != nil {
			return fmt.Errorf("sdg goal id: %w", err)
		}
		s.GoalID = id
		if obj.Level != nil && *obj.Level != "" {
			s.Level = obj.Level
		}
		return nil
	}
	id, err := scalarInt(data)
	if err != nil {
		return fmt.Errorf("sdg goal id: %w", err)
	}
	s.GoalID = id
	return nil
}

// MotivationInput selects an embargo motivation with optional free text.
type MotivationInput struct {
	MotivationID    int64 `validate:"gt=0"`
	OtherMotivation *string
}

// UnmarshalJSON accepts 6 or {"motivation_id"|"motivationId": 6, "other_motivation"|"otherMotivation"|"other": "..."}.
func (m *MotivationInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			IDSnake    json.RawMessage `json:"motivation_id"`
			ID         json.RawMessage `json:"motivationId"`
			OtherSnake *string         `json:"other_motivation"`
			Other      *string         `json:"otherMotivation"`
			OtherShort *string         `json:"other"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		id, err := scalarInt(firstPresent(obj.IDSnake, obj.ID))
		if err != nil {
			return fmt.Errorf("motivation id: %w", err)
		}
		m.MotivationID = id
		for _, other := range []*string{obj.OtherSnake, obj.Other, obj.OtherShort} {
			if other != nil {
				m.OtherMotivation = other
				break
			}
		}
		return nil
	}
	id, err := scalarInt(data)
	if err != nil {
		return fmt.Errorf("motivation id: %w", err)
	}
	m.MotivationID = id
	return nil
}

// EmbargoInput describes the embargo that replaces any previous one.
type EmbargoInput struct {
	Duration    string            `validate:"required"`
	Motivations []MotivationInput `validate:"min=1,dive"`
}

// UnmarshalJSON accepts duration as a string or number.
func (e *EmbargoInput) UnmarshalJSON(data []byte) error {
	var obj struct {
		Duration       json.RawMessage   `json:"duration"`
		DurationMonths json.RawMessage   `json:"duration_months"`
		Motivations    []MotivationInput `json:"motivations"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	raw := firstPresent(obj.Duration, obj.DurationMonths)
	if len(raw) > 0 && string(raw) != "null" {
		duration, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("embargo duration: %w", err)
		}
		e.Duration = strings.TrimSpace(duration)
	}
	e.Motivations = obj.Motivations
	return nil
}

// ConclusionRequest carries the metadata and staged files of a conclusion
// submission. A nil collection leaves the stored set unchanged; a non-nil empty
// one clears it.
type ConclusionRequest struct {
	Title         string             `validate:"required,max=255"`
	TitleEng      *string            `validate:"omitempty,max=255"`
	Abstract      string             `validate:"required,max=3550"`
	AbstractEng   *string            `validate:"omitempty,max=3550"`
	Language      string             `validate:"oneof=it en"`
	LicenseID     *int64             `validate:"omitempty,gte=0"`
	CoSupervisors *[]TeacherRef      `validate:"omitempty"`
	Keywords      *[]KeywordInput    `validate:"omitempty"`
	SDGs          *[]SDGInput        `validate:"omitempty"`
	Embargo       *EmbargoInput      `validate:"omitempty"`
	ThesisFile    *models.UploadedFile
	ThesisResume  *models.UploadedFile
	AdditionalZip *models.UploadedFile
}

// ConclusionSupervisor is a live supervisor link in the read-back projection.
type ConclusionSupervisor struct {
	TeacherID    string `json:"teacherId"`
	IsSupervisor bool   `json:"isSupervisor"`
}

// ConclusionSDG is an SDG tag in the read-back projection.
type ConclusionSDG struct {
	GoalID int64            `json:"goalId"`
	Level  *models.SDGLevel `json:"sdgLevel"`
}

// ConclusionKeyword is a keyword link in the read-back projection.
type ConclusionKeyword struct {
	KeywordID    *int64  `json:"keywordId"`
	KeywordOther *string `json:"keywordOther"`
}

// ConclusionMotivation is an embargo motivation in the read-back projection.
type ConclusionMotivation struct {
	MotivationID    int64   `json:"motivationId"`
	OtherMotivation *string `json:"otherMotivation"`
}

// ConclusionEmbargo is the embargo in the read-back projection.
type ConclusionEmbargo struct {
	ID          string                 `json:"id"`
	Duration    string                 `json:"duration"`
	Motivations []ConclusionMotivation `json:"motivations"`
}

// ConclusionResponse is the thesis as stored after a conclusion request.
type ConclusionResponse struct {
	ID                               string                 `json:"id"`
	Topic                            string                 `json:"topic"`
	Title                            *string                `json:"title"`
	TitleEng                         *string                `json:"titleEng"`
	Language                         string                 `json:"language"`
	Abstract                         *string                `json:"abstract"`
	AbstractEng                      *string                `json:"abstractEng"`
	ThesisFilePath                   *string                `json:"thesisFilePath"`
	ThesisResumePath                 *string                `json:"thesisResumePath"`
	AdditionalZipPath                *string                `json:"additionalZipPath"`
	LicenseID                        *int64                 `json:"licenseId"`
	CompanyID                        *string                `json:"companyId"`
	StudentID                        string                 `json:"studentId"`
	ThesisApplicationID              string                 `json:"thesisApplicationId"`
	Status                           models.ThesisStatus    `json:"status"`
	ThesisStartDate                  time.Time              `json:"thesisStartDate"`
	ThesisConclusionRequestDate      *time.Time             `json:"thesisConclusionRequestDate"`
	ThesisConclusionConfirmationDate *time.Time             `json:"thesisConclusionConfirmationDate"`
	Supervisors                      []ConclusionSupervisor `json:"supervisors"`
	SDGs                             []ConclusionSDG        `json:"sdgs"`
	Keywords                         []ConclusionKeyword    `json:"keywords"`
	Embargo                          *ConclusionEmbargo     `json:"embargo"`
}

// DocumentLinkResponse is a signed download link for a committed document.
type DocumentLinkResponse struct {
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

func scalarString(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return "", fmt.Errorf("value is required")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func scalarInt(data json.RawMessage) (int64, error) {
	s, err := scalarString(data)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return id, nil
}
