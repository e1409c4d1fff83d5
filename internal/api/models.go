package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"switchboard/internal/domain/model"
)

type modelList struct {
	Object string        `json:"object"`
	Data   []model.Model `json:"data"`
}

// parseFilter reads the optional capability filters from the query string.
func parseFilter(r *http.Request) (*model.ModelFilter, error) {
	q := r.URL.Query()
	filter := &model.ModelFilter{}
	set := false

	for name, dst := range map[string]**bool{
		"streaming":   &filter.Streaming,
		"vision":      &filter.Vision,
		"tools":       &filter.Tools,
		"temperature": &filter.Temperature,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, invalidInput("%s=%q is not a boolean", name, v)
		}
		*dst = &b
		set = true
	}

	if p := q.Get("provider"); p != "" {
		filter.Provider = &p
		set = true
	}

	if !set {
		return nil, nil
	}
	return filter, nil
}

func (s *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	models := s.deps.Catalog.List(filter)
	if models == nil {
		models = []model.Model{}
	}
	writeJSON(w, http.StatusOK, modelList{Object: "list", Data: models})
}

func (s *handlers) getModel(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	m, _, err := s.deps.Catalog.Resolve(path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.deps.Catalog.Providers()
	if providers == nil {
		providers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"data": providers})
}
