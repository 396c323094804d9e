package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
)

// PayoutsCSV renders the transfer plan of r, one row per instruction.
func PayoutsCSV(r *model.Report) ([]byte, error) {
	scores := make(map[int]float64, len(r.Standings))
	for _, s := range r.Standings {
		scores[s.Rank] = s.Score
	}
	return writeCSV(
		[]string{"window_id", "kind", "rank", "handle", "wallet", "score", "computed_lamports", "amount_lamports", "amount_sol", "status", "signature", "reason"},
		len(r.Payouts),
		func(i int) []string {
			p := r.Payouts[i]
			score := ""
			if p.Kind == model.PayeeWinner {
				score = strconv.FormatFloat(scores[p.Rank], 'f', 6, 64)
			}
			return []string{
				r.WindowID,
				string(p.Kind),
				strconv.Itoa(p.Rank),
				p.Handle,
				p.Wallet,
				score,
				strconv.FormatInt(int64(p.Computed), 10),
				strconv.FormatInt(int64(p.Amount), 10),
				p.Amount.SOL().StringFixed(9),
				string(p.Status),
				p.Signature,
				p.Reason,
			}
		})
}

// InterimCSV renders every interim post with its author's preview rank.
// Authors missing from ranked get empty rank and score cells.
func InterimCSV(posts []model.Post, regs []model.Registration, ranked *model.Ranked) ([]byte, error) {
	registered := make(map[string]bool, len(regs))
	for _, r := range regs {
		registered[model.NormalizeHandle(r.Handle)] = true
	}
	standings := make(map[string]model.Standing)
	if ranked != nil {
		for _, s := range ranked.Standings {
			standings[model.NormalizeHandle(s.Handle)] = s
		}
	}
	return writeCSV(
		[]string{"post_id", "handle", "text", "created_at", "author_score", "author_rank", "registered",
			"likes", "reposts", "quotes", "replies", "views", "has_media"},
		len(posts),
		func(i int) []string {
			p := posts[i]
			key := model.NormalizeHandle(p.Handle)
			score, rank := "", ""
			if s, ok := standings[key]; ok {
				score, rank = strconv.FormatFloat(s.Score, 'f', 6, 64), strconv.Itoa(s.Rank)
			}
			e := p.Engagement
			return []string{
				p.PostID,
				p.Handle,
				p.Text,
				p.CreatedAt.UTC().Format(time.RFC3339),
				score,
				rank,
				strconv.FormatBool(registered[key]),
				strconv.FormatInt(e.Likes, 10),
				strconv.FormatInt(e.Reposts, 10),
				strconv.FormatInt(e.Quotes, 10),
				strconv.FormatInt(e.Replies, 10),
				strconv.FormatInt(e.Views, 10),
				strconv.FormatBool(p.HasMedia),
			}
		})
}

func writeCSV(header []string, n int, row func(int) []string) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
