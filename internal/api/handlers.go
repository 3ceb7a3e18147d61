package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"feedsync/internal/domain"
	"feedsync/internal/service"
	"feedsync/internal/syndication"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedToCreate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	res, err := s.feeds.Subscribe(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feeds.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, feeds)
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	feed, err := s.feeds.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, feed)
}

func (s *Server) updateFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req struct {
		Status        *domain.FeedStatus `json:"status"`
		FetchOldItems *bool              `json:"fetch_old_items"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	feed, err := s.feeds.Update(r.Context(), domain.FeedToUpdate{
		ID:            id,
		Status:        req.Status,
		FetchOldItems: req.FetchOldItems,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, feed)
}

func (s *Server) deleteFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.feeds.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	opt, err := parseReadOption(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items, err := s.items.List(r.Context(), opt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, items)
}

func (s *Server) countItems(w http.ResponseWriter, r *http.Request) {
	opt, err := parseReadOption(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	count, err := s.items.Count(r.Context(), opt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int64{"count": count})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req struct {
		Status  *domain.ItemStatus `json:"status"`
		IsSaved *bool              `json:"is_saved"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	if err := validStatus(req.Status); err != nil {
		s.fail(w, r, err)
		return
	}

	item, err := s.items.Update(r.Context(), domain.ItemToUpdate{ID: id, Status: req.Status, IsSaved: req.IsSaved})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

func (s *Server) updateItems(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemToUpdateAll
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	if err := validStatus(req.Status); err != nil {
		s.fail(w, r, err)
		return
	}

	updated, err := s.items.UpdateAll(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int64{"updated": updated})
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseSettingKey(chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	setting, err := s.settings.Get(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, setting)
}

func (s *Server) saveSetting(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseSettingKey(chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	setting := domain.Setting{Key: key, Value: req.Value}
	if err := s.saver.SaveAll(r.Context(), []domain.Setting{setting}); err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, setting)
}

// saveSettings updates several keys at once; either all of them are
// written or none.
func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	for k := range req {
		if _, err := domain.ParseSettingKey(k); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	settings := make([]domain.Setting, 0, len(req))
	for _, key := range domain.SettingKeys {
		if v, ok := req[string(key)]; ok {
			settings = append(settings, domain.Setting{Key: key, Value: v})
		}
	}

	if err := s.saver.SaveAll(r.Context(), settings); err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.syncer.RunOnce(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res == nil {
		res = &domain.SyncResult{}
	}
	render.JSON(w, r, res.Stats)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var fetchErr *syndication.FetchError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFeedExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrEmptyLink),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSetting):
		return http.StatusBadRequest
	case errors.Is(err, syndication.ErrNoFeedFound),
		errors.Is(err, syndication.ErrUnrecognizedFormat):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func validStatus(status *domain.ItemStatus) error {
	if status == nil {
		return nil
	}
	if _, err := domain.ParseItemStatus(string(*status)); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseReadOption maps query parameters onto an ItemReadOption:
// ids=1,2&feed=3&status=unread&is_saved=true&order_by=UnreadFirst&limit=20&offset=1
func parseReadOption(q url.Values) (domain.ItemReadOption, error) {
	var opt domain.ItemReadOption

	if raw := q.Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return opt, fmt.Errorf("%w: invalid ids", errBadRequest)
			}
			opt.IDs = append(opt.IDs, id)
		}
	}

	if raw := q.Get("feed"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return opt, fmt.Errorf("%w: invalid feed", errBadRequest)
		}
		opt.Feed = &id
	}

	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseItemStatus(raw)
		if err != nil {
			return opt, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		opt.Status = &status
	}

	if raw := q.Get("is_saved"); raw != "" {
		saved, err := strconv.ParseBool(raw)
		if err != nil {
			return opt, fmt.Errorf("%w: invalid is_saved", errBadRequest)
		}
		opt.IsSaved = &saved
	}

	if raw := q.Get("order_by"); raw != "" {
		order := domain.ItemOrder(raw)
		if !order.Valid() {
			return opt, fmt.Errorf("%w: invalid order_by %q", errBadRequest, raw)
		}
		opt.OrderBy = &order
	}

	for name, dst := range map[string]**uint64{"limit": &opt.Limit, "offset": &opt.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return opt, fmt.Errorf("%w: invalid %s", errBadRequest, name)
		}
		*dst = &v
	}

	return opt, nil
}
