package httpapi

import (
	"time"

	"github.com/mesh-intelligence/vault/pkg/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

type contributeResponse struct {
	Success       bool   `json:"success"`
	NewShareToken string `json:"new_share_token,omitempty"`
	NewImageURL   string `json:"new_image_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// AnswersResponse is the answers object of a lineage entry.
type AnswersResponse struct {
	A1 string `json:"a1"`
	A2 string `json:"a2"`
	A3 string `json:"a3"`
}

// QuestionsResponse is the root_questions object; unset questions are null.
type QuestionsResponse struct {
	Q1 *string `json:"q1"`
	Q2 *string `json:"q2"`
	Q3 *string `json:"q3"`
}

// ContributionResponse is one entry of a lineage.
type ContributionResponse struct {
	ID                   int64           `json:"id"`
	ShareToken           string          `json:"share_token"`
	ParentContributionID *int64          `json:"parent_contribution_id"`
	LineageRootID        int64           `json:"lineage_root_id"`
	ImageFilename        string          `json:"image_filename"`
	ImageDescription     string          `json:"image_description"`
	ContributorUserAgent string          `json:"contributor_user_agent"`
	Timestamp            time.Time       `json:"timestamp"`
	Answers              AnswersResponse `json:"answers"`
}

// VaultResponse is the body of GET /api/vault/:share_token.
type VaultResponse struct {
	ImagePrompt   *string                `json:"image_prompt"`
	RootQuestions QuestionsResponse      `json:"root_questions"`
	Contributions []ContributionResponse `json:"contributions"`
	Truncated     bool                   `json:"truncated"`
}

// NewVaultResponse shapes a resolved lineage for clients.
func NewVaultResponse(l *types.Lineage) VaultResponse {
	out := VaultResponse{
		ImagePrompt: l.Prompt,
		RootQuestions: QuestionsResponse{
			Q1: l.RootQuestions.Q1,
			Q2: l.RootQuestions.Q2,
			Q3: l.RootQuestions.Q3,
		},
		Contributions: make([]ContributionResponse, 0, len(l.Contributions)),
		Truncated:     l.Truncated,
	}
	for _, c := range l.Contributions {
		out.Contributions = append(out.Contributions, ContributionResponse{
			ID:                   c.ID,
			ShareToken:           c.ShareToken,
			ParentContributionID: c.ParentID,
			LineageRootID:        c.LineageRootID,
			ImageFilename:        c.ImageRef,
			ImageDescription:     c.Description,
			ContributorUserAgent: c.ContributorAgent,
			Timestamp:            c.CreatedAt,
			Answers:              AnswersResponse{A1: c.Answers.A1, A2: c.Answers.A2, A3: c.Answers.A3},
		})
	}
	return out
}

// MapEntry is one marker of GET /api/map/latest.
type MapEntry struct {
	ID               int64   `json:"id"`
	ShareToken       string  `json:"share_token"`
	ImageDescription string  `json:"image_description"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}
