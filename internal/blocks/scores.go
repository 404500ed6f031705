package blocks

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mrlerner/daily-briefing/internal/config"
)

const (
	espnBaseURL         = "https://site.api.espn.com/apis/site/v2/sports"
	scoresClientTimeout = 10 * time.Second
	scoresMaxRespBytes  = 2 << 20 // 2MB
	scoresMaxInSummary  = 3
)

// 常见联赛到 ESPN 路径的映射；不认识的联赛直接报错而不是瞎猜
var leaguePaths = map[string]string{
	"nba": "basketball/nba",
	"nfl": "football/nfl",
	"mlb": "baseball/mlb",
	"nhl": "hockey/nhl",
	"mls": "soccer/usa.1",
	"epl": "soccer/eng.1",
}

// ScoresFetcher 从 ESPN 公开计分板接口拉当日赛果
type ScoresFetcher struct {
	baseURL string
	client  *http.Client
}

func NewScoresFetcher() *ScoresFetcher {
	return &ScoresFetcher{
		baseURL: espnBaseURL,
		client:  &http.Client{Timeout: scoresClientTimeout},
	}
}

func (s *ScoresFetcher) Type() string {
	return "scores"
}

func (s *ScoresFetcher) Fetch(cfg config.BlockConfig) (*Payload, error) {
	league := strings.ToLower(cfg.League)
	path, ok := leaguePaths[league]
	if !ok {
		return nil, fmt.Errorf("scores: unsupported league %q", cfg.League)
	}
	label := cfg.Label
	if label == "" {
		label = strings.ToUpper(league)
	}

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/"+path+"/scoreboard", nil)
	if err != nil {
		return nil, fmt.Errorf("scores %s: build request: %w", league, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scores %s: fetch: %w", league, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scores %s: unexpected status %d", league, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, scoresMaxRespBytes))
	if err != nil {
		return nil, fmt.Errorf("scores %s: read body: %w", league, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("scores %s: response is not valid json", league)
	}

	games := make([]map[string]any, 0, 8)
	gjson.GetBytes(body, "events").ForEach(func(_, event gjson.Result) bool {
		comp := event.Get("competitions.0")
		home := comp.Get(`competitors.#(homeAway=="home")`)
		away := comp.Get(`competitors.#(homeAway=="away")`)

		game := map[string]any{
			"name":      event.Get("shortName").String(),
			"status":    comp.Get("status.type.shortDetail").String(),
			"completed": comp.Get("status.type.completed").Bool(),
			"home":      home.Get("team.abbreviation").String(),
			"homeScore": home.Get("score").String(),
			"away":      away.Get("team.abbreviation").String(),
			"awayScore": away.Get("score").String(),
		}

		if len(cfg.Teams) > 0 && !involvesTeam(game, cfg.Teams) {
			return true
		}
		games = append(games, game)
		return true
	})

	payload := &Payload{
		Type:  "scores",
		Label: label,
		Data: map[string]any{
			"league": league,
			"games":  games,
		},
		SummaryLine: scoresSummary(label, games),
	}

	log.Printf("scores %s: %d games on the board", league, len(games))
	return payload, nil
}

func involvesTeam(game map[string]any, teams []string) bool {
	home, _ := game["home"].(string)
	away, _ := game["away"].(string)
	for _, t := range teams {
		t = strings.ToUpper(t)
		if t == home || t == away {
			return true
		}
	}
	return false
}

// scoresSummary 挑前几场拼一行摘要；没有比赛也是合法结果
func scoresSummary(label string, games []map[string]any) string {
	if len(games) == 0 {
		return fmt.Sprintf("%s: no games on the board today.", label)
	}

	parts := make([]string, 0, scoresMaxInSummary)
	for _, g := range games {
		if len(parts) >= scoresMaxInSummary {
			break
		}
		parts = append(parts, fmt.Sprintf("%s %s–%s %s",
			g["away"], g["awayScore"], g["homeScore"], g["home"]))
	}
	return fmt.Sprintf("%s: %s.", label, strings.Join(parts, "; "))
}
