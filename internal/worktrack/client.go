package worktrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cpuguy83/teamcal/internal/auth"
)

const apiVersion = "7.1"

// tokenProvider can acquire access tokens for the work-tracking service.
type tokenProvider interface {
	GetToken(ctx context.Context) (*auth.Token, error)
}

// RESTClient talks to the work-tracking service's team-settings REST API.
type RESTClient struct {
	baseURL string
	auth    tokenProvider
	client  *http.Client
}

// NewRESTClient creates a client for the given organization base URL.
func NewRESTClient(baseURL string, auth tokenProvider) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		auth:    auth,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Wire representations. The service serializes day boundaries as bare
// instants with no timezone marker; decode normalizes them to UTC neutral
// midnight.

type apiIterationList struct {
	Value []apiIteration `json:"value"`
}

type apiIteration struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Attributes struct {
		StartDate  string `json:"startDate,omitempty"`
		FinishDate string `json:"finishDate,omitempty"`
		TimeFrame  string `json:"timeFrame,omitempty"`
	} `json:"attributes"`
}

type apiDateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type apiTeamDaysOff struct {
	DaysOff []apiDateRange `json:"daysOff"`
}

type apiCapacityList struct {
	Value []apiCapacity `json:"value"`
}

type apiCapacity struct {
	TeamMember struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		UniqueName  string `json:"uniqueName"`
	} `json:"teamMember"`
	Activities []apiActivity  `json:"activities"`
	DaysOff    []apiDateRange `json:"daysOff"`
}

type apiActivity struct {
	Name           string  `json:"name"`
	CapacityPerDay float64 `json:"capacityPerDay"`
}

// GetTeamIterations fetches the team's iteration list.
func (c *RESTClient) GetTeamIterations(ctx context.Context, tc TeamContext) ([]Iteration, error) {
	var resp apiIterationList
	if err := c.do(ctx, http.MethodGet, c.teamPath(tc, "iterations"), nil, &resp); err != nil {
		return nil, fmt.Errorf("get iterations: %w", err)
	}

	iterations := make([]Iteration, 0, len(resp.Value))
	for _, ai := range resp.Value {
		it := Iteration{
			ID:        ai.ID,
			Name:      ai.Name,
			Path:      ai.Path,
			TimeFrame: ai.Attributes.TimeFrame,
		}
		if t, err := parseAPIDate(ai.Attributes.StartDate); err == nil {
			it.Start = &t
		}
		if t, err := parseAPIDate(ai.Attributes.FinishDate); err == nil {
			it.Finish = &t
		}
		iterations = append(iterations, it)
	}
	return iterations, nil
}

// GetTeamDaysOff fetches the team-wide days-off for one iteration.
func (c *RESTClient) GetTeamDaysOff(ctx context.Context, tc TeamContext, iterationID string) (TeamDaysOff, error) {
	var resp apiTeamDaysOff
	path := c.teamPath(tc, "iterations/"+iterationID+"/teamdaysoff")
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return TeamDaysOff{}, fmt.Errorf("get team days off: %w", err)
	}
	return TeamDaysOff{DaysOff: decodeRanges(resp.DaysOff)}, nil
}

// UpdateTeamDaysOff replaces the team-wide days-off list and returns the
// server's view of the result.
func (c *RESTClient) UpdateTeamDaysOff(ctx context.Context, patch TeamDaysOffPatch, tc TeamContext, iterationID string) (TeamDaysOff, error) {
	body := apiTeamDaysOff{DaysOff: encodeRanges(patch.DaysOff)}

	var resp apiTeamDaysOff
	path := c.teamPath(tc, "iterations/"+iterationID+"/teamdaysoff")
	if err := c.do(ctx, http.MethodPatch, path, body, &resp); err != nil {
		return TeamDaysOff{}, fmt.Errorf("update team days off: %w", err)
	}
	return TeamDaysOff{DaysOff: decodeRanges(resp.DaysOff)}, nil
}

// GetCapacities fetches all member capacity records for one iteration.
func (c *RESTClient) GetCapacities(ctx context.Context, tc TeamContext, iterationID string) ([]TeamMemberCapacity, error) {
	var resp apiCapacityList
	path := c.teamPath(tc, "iterations/"+iterationID+"/capacities")
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get capacities: %w", err)
	}

	capacities := make([]TeamMemberCapacity, 0, len(resp.Value))
	for _, ac := range resp.Value {
		capacities = append(capacities, decodeCapacity(ac))
	}
	return capacities, nil
}

// UpdateCapacity replaces one member's capacity record.
func (c *RESTClient) UpdateCapacity(ctx context.Context, patch CapacityPatch, tc TeamContext, iterationID, memberID string) (TeamMemberCapacity, error) {
	body := struct {
		Activities []apiActivity  `json:"activities"`
		DaysOff    []apiDateRange `json:"daysOff"`
	}{
		Activities: encodeActivities(patch.Activities),
		DaysOff:    encodeRanges(patch.DaysOff),
	}

	var resp apiCapacity
	path := c.teamPath(tc, "iterations/"+iterationID+"/capacities/"+memberID)
	if err := c.do(ctx, http.MethodPatch, path, body, &resp); err != nil {
		return TeamMemberCapacity{}, fmt.Errorf("update capacity: %w", err)
	}
	return decodeCapacity(resp), nil
}

// teamPath builds a team-scoped team-settings resource path.
func (c *RESTClient) teamPath(tc TeamContext, resource string) string {
	return fmt.Sprintf("%s/%s/%s/_apis/work/teamsettings/%s",
		c.baseURL, url.PathEscape(tc.Project), url.PathEscape(tc.Team), resource)
}

// do performs one authenticated request and decodes the JSON response into out.
func (c *RESTClient) do(ctx context.Context, method, reqURL string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u, err := url.Parse(reqURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("api-version", apiVersion)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	token, err := c.auth.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("service error: status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseAPIDate parses a service instant. The service emits RFC3339 or a bare
// "2006-01-02T15:04:05" with no zone; either way only the calendar day is
// meaningful, so the result is the UTC midnight of that day.
func parseAPIDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func formatAPIDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func decodeRanges(in []apiDateRange) []DateRange {
	out := make([]DateRange, 0, len(in))
	for _, r := range in {
		start, err := parseAPIDate(r.Start)
		if err != nil {
			continue
		}
		end, err := parseAPIDate(r.End)
		if err != nil {
			continue
		}
		out = append(out, DateRange{Start: start, End: end})
	}
	return out
}

func encodeRanges(in []DateRange) []apiDateRange {
	out := make([]apiDateRange, 0, len(in))
	for _, r := range in {
		out = append(out, apiDateRange{
			Start: formatAPIDate(r.Start),
			End:   formatAPIDate(r.End),
		})
	}
	return out
}

func encodeActivities(in []Activity) []apiActivity {
	out := make([]apiActivity, 0, len(in))
	for _, a := range in {
		out = append(out, apiActivity{Name: a.Name, CapacityPerDay: a.CapacityPerDay})
	}
	return out
}

func decodeCapacity(ac apiCapacity) TeamMemberCapacity {
	capacity := TeamMemberCapacity{
		Member: Member{
			ID:          ac.TeamMember.ID,
			DisplayName: ac.TeamMember.DisplayName,
			UniqueName:  ac.TeamMember.UniqueName,
		},
		DaysOff: decodeRanges(ac.DaysOff),
	}
	for _, a := range ac.Activities {
		capacity.Activities = append(capacity.Activities, Activity{
			Name:           a.Name,
			CapacityPerDay: a.CapacityPerDay,
		})
	}
	return capacity
}

var _ Client = (*RESTClient)(nil)
