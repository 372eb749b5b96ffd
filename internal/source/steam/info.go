package steam

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"branchwatch/internal/branch"
)

// infoResponse is the shape of api.steamcmd.net/v1/info/<appid>.
// Numbers arrive as strings, as in steamcmd's app_info_print output.
type infoResponse struct {
	Status string                     `json:"status"`
	Data   map[string]json.RawMessage `json:"data"`
}

type appInfo struct {
	Depots struct {
		// Branch order matters to the pipeline, so keep the document order.
		Branches *orderedmap.OrderedMap[string, branchInfo] `json:"branches"`
	} `json:"depots"`
}

type branchInfo struct {
	BuildID     flexString `json:"buildid"`
	TimeUpdated flexString `json:"timeupdated"`
	PwdRequired flexString `json:"pwdrequired,omitempty"`
	Description string     `json:"description,omitempty"`
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

func decodeBranches(body []byte, appID int) ([]branch.Record, error) {
	var resp infoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode app info: %w", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("app info status %q", resp.Status)
	}
	raw, ok := resp.Data[strconv.Itoa(appID)]
	if !ok {
		return nil, fmt.Errorf("app %d missing from response", appID)
	}
	var info appInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode app %d: %w", appID, err)
	}
	if info.Depots.Branches == nil {
		return nil, fmt.Errorf("app %d lists no branches", appID)
	}

	out := make([]branch.Record, 0, info.Depots.Branches.Len())
	for pair := info.Depots.Branches.Oldest(); pair != nil; pair = pair.Next() {
		b := pair.Value
		rec := branch.Record{
			Name:    pair.Key,
			BuildID: string(b.BuildID),
			// An absent pwdrequired means public; any value means locked.
			PasswordProtected: b.PwdRequired != "",
		}
		if ts := strings.TrimSpace(string(b.TimeUpdated)); ts != "" {
			n, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("branch %q: timeupdated %q: %w", pair.Key, ts, err)
			}
			rec.LastUpdated = n
		}
		out = append(out, rec)
	}
	return out, nil
}
