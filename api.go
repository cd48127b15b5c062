package main

import (
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"

	"aa_exporter/internal/database"
	"aa_exporter/internal/filter"
)

// api serves read-only JSON views of the database, filtered the way the
// profile, process and log tables are filtered interactively.
type api struct {
	db      *database.Database
	matcher *filter.Matcher
}

func newAPI(db *database.Database, m *filter.Matcher) *api {
	return &api{db: db, matcher: m}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/profiles", a.profiles)
	mux.HandleFunc("GET /api/processes", a.processes)
	mux.HandleFunc("GET /api/logs", a.logs)
}

// ruleFromQuery reads ?filter=&regex=&case=&word=.
func ruleFromQuery(r *http.Request) (filter.Rule, error) {
	q := r.URL.Query()
	rule := filter.Rule{Pattern: q.Get("filter")}
	for name, dst := range map[string]*bool{
		"regex": &rule.UseRegex,
		"case":  &rule.MatchCase,
		"word":  &rule.WholeWord,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rule, errors.New("query parameter " + name + " must be a boolean")
		}
		*dst = b
	}
	return rule, nil
}

type listResponse[T any] struct {
	Found int `json:"found"`
	Items []T `json:"items"`
}

func writeList[T filter.Row](w http.ResponseWriter, r *http.Request, m *filter.Matcher, seq iter.Seq[T]) {
	rule, err := ruleFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var matchErr error
	resp := listResponse[T]{Items: []T{}}
	for row := range filter.Select(m, seq, rule, &matchErr) {
		resp.Items = append(resp.Items, row)
	}
	if matchErr != nil {
		http.Error(w, matchErr.Error(), http.StatusBadRequest)
		return
	}
	resp.Found = len(resp.Items)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *api) profiles(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, a.matcher, a.db.Summaries())
}

func (a *api) processes(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, a.matcher, a.db.Process.Processes(r.URL.Query().Get("profile")))
}

func (a *api) logs(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	limit := r.URL.Query().Get("limit")
	if limit == "" {
		writeList(w, r, a.matcher, a.db.Log.Logs(profile))
		return
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n <= 0 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	latest := a.db.Log.Latest(profile, n)
	writeList(w, r, a.matcher, func(yield func(database.LogEntry) bool) {
		for _, e := range latest {
			if !yield(e) {
				return
			}
		}
	})
}
