package fakeapp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/users"
)

var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

type activitiesPageData struct {
	Title      string
	Email      string
	Activities []string
}

// HandleActivities handles GET /activities, the landing page after sign-in.
func (a *App) HandleActivities(w http.ResponseWriter, r *http.Request) {
	addr, _ := a.sessionEmail(r)
	data := activitiesPageData{
		Title:      "Activities",
		Email:      addr,
		Activities: []string{"Rainy day crafts", "Indoor obstacle course", "Library story hour"},
	}
	if err := a.renderer.Render(w, "activities.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

type usersPageData struct {
	Title    string
	Statuses []users.Status
	Total    int
	PageSize int
}

// HandleUsersPage handles GET /users. Rows are fetched by the page script.
func (a *App) HandleUsersPage(w http.ResponseWriter, r *http.Request) {
	data := usersPageData{
		Title:    "App Users",
		Statuses: users.Statuses,
		Total:    len(a.users),
		PageSize: a.cfg.PageSize,
	}
	if err := a.renderer.Render(w, "users.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// UsersPage is the /api/users response.
type UsersPage struct {
	Total int   `json:"total"`
	Rows  []Row `json:"rows"`
}

// ParseFilter reads the users view's query parameters. Unparseable dates are
// ignored, like a half-typed date input.
func ParseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Query: q.Get("q")}
	if s := q.Get("status"); s != "" {
		status, err := users.ParseStatus(s)
		if err != nil {
			return Filter{}, err
		}
		f.Status = status
	}
	from, fromErr := users.ParseDay(q.Get("from"))
	to, toErr := users.ParseDay(q.Get("to"))
	if fromErr == nil || toErr == nil {
		rng := users.DateRange{From: from, To: to}
		if toErr != nil {
			rng.To = farFuture
		}
		f.Range = &rng
	}
	return f, nil
}

// HandleUsersAPI handles GET /api/users?q=&status=&from=&to=&offset=&limit=.
func (a *App) HandleUsersAPI(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), messageResponse{Message: errs.MessageOf(err)})
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = a.cfg.PageSize
	}
	matched := f.Apply(a.users)
	offset = min(max(offset, 0), len(matched))
	end := min(offset+limit, len(matched))

	page := UsersPage{Total: len(matched), Rows: make([]Row, 0, end-offset)}
	for _, u := range matched[offset:end] {
		page.Rows = append(page.Rows, u.row())
	}
	writeJSON(w, http.StatusOK, page)
}
