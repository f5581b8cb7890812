package statsservice

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"github.com/xuri/excelize/v2"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

const defaultActivityDays = 30

type chartPalette struct {
	background drawing.Color
	primary    drawing.Color
	secondary  drawing.Color
	text       drawing.Color
}

var activityPalette = chartPalette{
	background: drawing.ColorFromHex("1e1f22"),
	primary:    drawing.ColorFromHex("3fa7d6"),
	secondary:  drawing.ColorFromHex("e8a33d"),
	text:       drawing.ColorFromHex("dcddde"),
}

// ActivityChart carries a rendered player activity chart.
type ActivityChart struct {
	Player sharedtypes.PlayerName
	Days   int
	PNG    []byte
}

// RenderPlayerActivityChart renders daily kills and play minutes for a player
// over the trailing window as a PNG line chart. days <= 0 uses the default
// window.
func (s *StatsService) RenderPlayerActivityChart(ctx context.Context, player sharedtypes.PlayerName, days int) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "RenderPlayerActivityChart", string(player), func(ctx context.Context) (StatsOperationResult, error) {
		if days <= 0 {
			days = defaultActivityDays
		}
		since := time.Now().UTC().AddDate(0, 0, -days)

		daily, err := s.repo.DailyStatsSince(ctx, nil, player, since)
		if err != nil {
			return StatsOperationResult{}, err
		}

		png, err := renderActivityChart(daily, activityPalette)
		if err != nil {
			return StatsOperationResult{}, fmt.Errorf("failed to render activity chart: %w", err)
		}
		return StatsOperationResult{Success: &ActivityChart{Player: player, Days: days, PNG: png}}, nil
	})
}

func renderActivityChart(daily []statsdb.PlayerDailyStats, palette chartPalette) ([]byte, error) {
	// A TimeSeries needs at least two points to render.
	if len(daily) < 2 {
		return renderNoActivityPlaceholder(palette)
	}

	xValues := make([]time.Time, len(daily))
	kills := make([]float64, len(daily))
	playMinutes := make([]float64, len(daily))
	for i, day := range daily {
		xValues[i] = day.Day
		kills[i] = float64(day.Kills)
		playMinutes[i] = day.PlayMinutes
	}

	killSeries := chart.TimeSeries{
		Name:    "Kills",
		XValues: xValues,
		YValues: kills,
		Style: chart.Style{
			StrokeColor: palette.primary,
			StrokeWidth: 2,
			DotWidth:    3,
			DotColor:    palette.primary,
		},
	}
	playSeries := chart.TimeSeries{
		Name:    "Play minutes",
		YAxis:   chart.YAxisSecondary,
		XValues: xValues,
		YValues: playMinutes,
		Style: chart.Style{
			StrokeColor: palette.secondary,
			StrokeWidth: 2,
		},
	}

	graph := chart.Chart{
		Width:  800,
		Height: 400,
		Background: chart.Style{
			FillColor: palette.background,
		},
		Canvas: chart.Style{
			FillColor: palette.background,
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
			Style: chart.Style{
				FontColor: palette.text,
			},
		},
		YAxis: chart.YAxis{
			Name: "Kills",
			Style: chart.Style{
				FontColor: palette.text,
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Play minutes",
			Style: chart.Style{
				FontColor: palette.text,
			},
		},
		Series: []chart.Series{killSeries, playSeries},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// renderNoActivityPlaceholder draws a small labeled frame instead of a data
// chart. The invisible series satisfies the renderer's non-empty requirement.
func renderNoActivityPlaceholder(palette chartPalette) ([]byte, error) {
	const (
		width  = 400
		height = 200
	)

	graph := chart.Chart{
		Title:  "No recent activity",
		Width:  width,
		Height: height,
		TitleStyle: chart.Style{
			FontColor: palette.text,
		},
		Background: chart.Style{
			FillColor: palette.background,
		},
		Canvas: chart.Style{
			FillColor: palette.background,
		},
		XAxis: chart.XAxis{Style: chart.Hidden()},
		YAxis: chart.YAxis{Style: chart.Hidden()},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: []float64{0, 1},
				YValues: []float64{0, 1},
				Style: chart.Style{
					StrokeColor: palette.background,
					StrokeWidth: 1,
				},
			},
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// LeaderboardExport carries a rendered XLSX leaderboard.
type LeaderboardExport struct {
	ServerGuid sharedtypes.ServerGuid
	Rows       int
	XLSX       []byte
}

const leaderboardExportLimit = 100

// ExportServerLeaderboard writes a server's current rankings to a spreadsheet,
// top-ranked first, capped at the export limit.
func (s *StatsService) ExportServerLeaderboard(ctx context.Context, serverGuid sharedtypes.ServerGuid) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "ExportServerLeaderboard", string(serverGuid), func(ctx context.Context) (StatsOperationResult, error) {
		rankings, err := s.repo.ServerRankings(ctx, nil, serverGuid, leaderboardExportLimit)
		if err != nil {
			return StatsOperationResult{}, err
		}

		f := excelize.NewFile()
		defer f.Close()

		const sheet = "Leaderboard"
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return StatsOperationResult{}, fmt.Errorf("failed to name sheet: %w", err)
		}

		header := []any{"Rank", "Player", "Score", "Kills", "Deaths", "K/D", "Play Minutes"}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return StatsOperationResult{}, fmt.Errorf("failed to write header row: %w", err)
		}

		for i, ranking := range rankings {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return StatsOperationResult{}, fmt.Errorf("failed to compute cell name: %w", err)
			}
			kd := float64(ranking.Kills)
			if ranking.Deaths > 0 {
				kd = float64(ranking.Kills) / float64(ranking.Deaths)
			}
			row := []any{
				ranking.Rank,
				string(ranking.PlayerName),
				ranking.Score,
				ranking.Kills,
				ranking.Deaths,
				kd,
				ranking.PlayMinutes,
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return StatsOperationResult{}, fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}

		buffer, err := f.WriteToBuffer()
		if err != nil {
			return StatsOperationResult{}, fmt.Errorf("failed to serialize workbook: %w", err)
		}
		return StatsOperationResult{Success: &LeaderboardExport{
			ServerGuid: serverGuid,
			Rows:       len(rankings),
			XLSX:       buffer.Bytes(),
		}}, nil
	})
}
