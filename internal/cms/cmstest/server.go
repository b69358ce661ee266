// Package cmstest provides an in-memory stand-in for the CMS REST API,
// served over httptest, for use in tests.
package cmstest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TimeLayout matches the timestamps the CMS emits.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Shape selects how records are rendered in responses.
type Shape int

const (
	// Flat renders attributes directly on the record (current CMS).
	Flat Shape = iota

	// Nested renders attributes under "attributes" and relations inside
	// {"data": ...} envelopes (legacy CMS).
	Nested
)

// Request is a recorded call to the server.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
	Token  string
}

// Data returns the "data" object of a create or update body.
func (r Request) Data() map[string]any {
	d, _ := r.Body["data"].(map[string]any)
	return d
}

// Failure is an injected error response.
type Failure struct {
	Status  int
	Name    string
	Message string
}

// Hook inspects a request before it is handled and may force a failure.
type Hook func(r Request) *Failure

// Server is a fake CMS.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	relations   map[string]map[string]string
	nextID      map[string]int64
	tokens      map[string]int64
	hidden      map[string]map[string]bool
	requests    []Request
	hooks       []Hook
	shape       Shape

	// Now returns the server clock used for createdAt.
	Now func() time.Time
}

// New starts a fake CMS that is closed when the test ends. Records in
// "users" are linked to "roles" through the "role" relation and media
// relations point at "files".
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		collections: map[string][]map[string]any{},
		relations:   map[string]map[string]string{},
		nextID:      map[string]int64{},
		tokens:      map[string]int64{},
		hidden:      map[string]map[string]bool{},
		Now:         time.Now,
	}
	s.Relate("users", "role", "roles")
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Relate declares field of collection as a relation to target.
func (s *Server) Relate(collection, field, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relations[collection] == nil {
		s.relations[collection] = map[string]string{}
	}
	s.relations[collection][field] = target
}

// SetShape switches the response rendering.
func (s *Server) SetShape(shape Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shape = shape
}

// HideInList omits field from list responses of collection, simulating
// endpoints that do not expose it.
func (s *Server) HideInList(collection, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hidden[collection] == nil {
		s.hidden[collection] = map[string]bool{}
	}
	s.hidden[collection][field] = true
}

// Seed stores rec in collection, filling id, documentId and createdAt
// when missing, and returns the stored copy.
func (s *Server) Seed(collection string, rec map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.insert(collection, rec))
}

// AddUser seeds a user with the given role name and returns its id.
func (s *Server) AddUser(username, roleName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.insert("users", map[string]any{
		"username":     username,
		"email":        username + "@example.com",
		"confirmed":    true,
		"blocked":      false,
		"role":         s.roleID(roleName),
		"loginMethods": "both",
	})
	return asInt(u["id"])
}

// SetUser merges fields into the stored user.
func (s *Server) SetUser(id int64, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.find("users", strconv.FormatInt(id, 10)); u != nil {
		for k, v := range fields {
			u[k] = v
		}
	}
}

// roleID returns the id of the named role, creating it (already locked).
func (s *Server) roleID(name string) int64 {
	for _, r := range s.collections["roles"] {
		if r["name"] == name {
			return asInt(r["id"])
		}
	}
	role := s.insert("roles", map[string]any{"name": name, "type": strings.ToLower(name)})
	return asInt(role["id"])
}

// AddToken makes token authenticate as userID on /users/me.
func (s *Server) AddToken(token string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// Record returns a copy of the stored record with the given id.
func (s *Server) Record(collection string, id int64) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.find(collection, strconv.FormatInt(id, 10)); rec != nil {
		return copyMap(rec)
	}
	return nil
}

// All returns copies of every stored record in collection.
func (s *Server) All(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		out = append(out, copyMap(rec))
	}
	return out
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the requests with the given method whose path
// starts with prefix.
func (s *Server) RequestsTo(method, prefix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Hook registers a request interceptor.
func (s *Server) Hook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Fail makes every matching request fail with status and message.
func (s *Server) Fail(method, path string, status int, message string) {
	s.Hook(func(r Request) *Failure {
		if r.Method == method && r.Path == path {
			return &Failure{Status: status, Message: message}
		}
		return nil
	})
}

// FailOnce makes the next matching request fail.
func (s *Server) FailOnce(method, path string, status int, message string) {
	done := false
	s.Hook(func(r Request) *Failure {
		if !done && r.Method == method && r.Path == path {
			done = true
			return &Failure{Status: status, Message: message}
		}
		return nil
	})
}

// handle dispatches every request.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
	}

	isMultipart := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
	if r.Body != nil && !isMultipart {
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &req.Body)
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if f := h(req); f != nil {
			writeError(w, f.Status, f.Name, f.Message)
			return
		}
	}

	if req.Path == "/upload" && r.Method == http.MethodPost {
		s.handleUpload(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case req.Path == "/users/me":
		s.handleMe(w, req)
	case req.Path == "/auth/local" && r.Method == http.MethodPost:
		s.handleLogin(w, req)
	case req.Path == "/auth/local/register" && r.Method == http.MethodPost:
		s.handleRegister(w, req)
	case (req.Path == "/google-auth/login" || req.Path == "/discord-auth/login") && r.Method == http.MethodPost:
		s.handleProviderLogin(w, req)
	case req.Path == "/set-password" && r.Method == http.MethodPost:
		s.handleSetPassword(w, req)
	case req.Path == "/users" && r.Method == http.MethodGet:
		s.handleUsers(w, req)
	default:
		s.handleCollection(w, req)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid multipart body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created []map[string]any
	for _, fh := range r.MultipartForm.File["files"] {
		rec := s.insert("files", map[string]any{
			"name": fh.Filename,
			"mime": fh.Header.Get("Content-Type"),
			"url":  "/uploads/" + fh.Filename,
			"size": fh.Size,
		})
		created = append(created, copyMap(rec))
	}
	if len(created) == 0 {
		writeError(w, http.StatusBadRequest, "ValidationError", "Files are empty")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleMe(w http.ResponseWriter, req Request) {
	id, ok := s.tokens[req.Token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "UnauthorizedError", "Missing or invalid credentials")
		return
	}
	u := s.find("users", strconv.FormatInt(id, 10))
	if u == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, s.renderFlat("users", u, true))
}

func (s *Server) handleLogin(w http.ResponseWriter, req Request) {
	ident, _ := req.Body["identifier"].(string)
	pass, _ := req.Body["password"].(string)
	for _, u := range s.collections["users"] {
		if (u["email"] == ident || u["username"] == ident) && u["password"] == pass {
			s.issue(w, http.StatusOK, u)
			return
		}
	}
	writeError(w, http.StatusBadRequest, "ValidationError", "Invalid identifier or password")
}

// issue returns a new token for user u (already locked).
func (s *Server) issue(w http.ResponseWriter, status int, u map[string]any) {
	token := "jwt-" + uuid.NewString()
	s.tokens[token] = asInt(u["id"])
	writeJSON(w, status, map[string]any{
		"jwt":  token,
		"user": s.renderFlat("users", u, true),
	})
}

func (s *Server) userBy(field, value string) map[string]any {
	for _, u := range s.collections["users"] {
		if value != "" && u[field] == value {
			return u
		}
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, req Request) {
	username, _ := req.Body["username"].(string)
	email, _ := req.Body["email"].(string)
	pass, _ := req.Body["password"].(string)
	if s.userBy("email", email) != nil || s.userBy("username", username) != nil {
		writeError(w, http.StatusBadRequest, "ApplicationError", "Email or Username are already taken")
		return
	}
	u := s.insert("users", map[string]any{
		"username":     username,
		"email":        email,
		"password":     pass,
		"confirmed":    true,
		"blocked":      false,
		"role":         s.roleID("Authenticated"),
		"loginMethods": "local",
	})
	s.issue(w, http.StatusOK, u)
}

// handleProviderLogin finds or creates the account for a relayed OAuth
// identity. New accounts have no local password.
func (s *Server) handleProviderLogin(w http.ResponseWriter, req Request) {
	email, _ := req.Body["email"].(string)
	if email == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "email is required")
		return
	}
	provider := strings.TrimSuffix(strings.TrimPrefix(req.Path, "/"), "-auth/login")
	u := s.userBy("email", email)
	if u == nil {
		name, _ := req.Body["username"].(string)
		if name == "" {
			name, _ = req.Body["name"].(string)
		}
		u = s.insert("users", map[string]any{
			"username":     name,
			"email":        email,
			"confirmed":    true,
			"blocked":      false,
			"role":         s.roleID("Authenticated"),
			"loginMethods": provider,
		})
	}
	s.issue(w, http.StatusOK, u)
}

func (s *Server) handleSetPassword(w http.ResponseWriter, req Request) {
	email, _ := req.Body["email"].(string)
	u := s.userBy("email", email)
	if u == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "User not found")
		return
	}
	if name, _ := req.Body["username"].(string); name != "" {
		u["username"] = name
	}
	u["password"], _ = req.Body["password"].(string)
	u["loginMethods"] = "both"
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": s.renderFlat("users", u, true)})
}

func (s *Server) handleUsers(w http.ResponseWriter, req Request) {
	rows := s.query("users", req.Query)
	out := make([]map[string]any, 0, len(rows))
	for _, u := range rows {
		out = append(out, s.renderFlat("users", u, true))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCollection(w http.ResponseWriter, req Request) {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	collection := parts[0]
	key := ""
	if len(parts) > 1 {
		key, _ = url.PathUnescape(parts[1])
	}
	populate := hasPopulate(req.Query)

	switch {
	case req.Method == http.MethodGet && key == "":
		rows := s.query(collection, req.Query)
		page, size := pagination(req.Query)
		total := len(rows)
		start := (page - 1) * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}
		data := make([]map[string]any, 0, end-start)
		for _, rec := range rows[start:end] {
			out := s.render(collection, rec, populate)
			s.applyFields(collection, out, req.Query)
			data = append(data, out)
		}
		pageCount := (total + size - 1) / size
		writeJSON(w, http.StatusOK, map[string]any{
			"data": data,
			"meta": map[string]any{"pagination": map[string]any{
				"page": page, "pageSize": size, "pageCount": pageCount, "total": total,
			}},
		})

	case req.Method == http.MethodGet:
		rec := s.find(collection, key)
		if rec == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": s.render(collection, rec, populate)})

	case req.Method == http.MethodPost && key == "":
		data := req.Data()
		if data == nil {
			writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
			return
		}
		if f := s.checkRelations(collection, data); f != nil {
			writeError(w, f.Status, f.Name, f.Message)
			return
		}
		rec := s.insert(collection, s.decodeRelations(collection, data))
		writeJSON(w, http.StatusCreated, map[string]any{"data": s.render(collection, rec, true)})

	case (req.Method == http.MethodPut || req.Method == http.MethodPatch) && key != "":
		rec := s.find(collection, key)
		if rec == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		data := req.Data()
		if data == nil {
			writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
			return
		}
		if f := s.checkRelations(collection, data); f != nil {
			writeError(w, f.Status, f.Name, f.Message)
			return
		}
		for k, v := range s.decodeRelations(collection, data) {
			if k == "id" || k == "documentId" {
				continue
			}
			rec[k] = v
		}
		rec["updatedAt"] = s.Now().UTC().Format(TimeLayout)
		writeJSON(w, http.StatusOK, map[string]any{"data": s.render(collection, rec, true)})

	case req.Method == http.MethodDelete && key != "":
		rows := s.collections[collection]
		for i, rec := range rows {
			if matchesKey(rec, key) {
				s.collections[collection] = append(rows[:i:i], rows[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]any{"data": s.render(collection, rec, false)})
				return
			}
		}
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")

	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "Method Not Allowed")
	}
}

// insert stores rec (already locked).
func (s *Server) insert(collection string, rec map[string]any) map[string]any {
	stored := copyMap(rec)
	if asInt(stored["id"]) == 0 {
		s.nextID[collection]++
		stored["id"] = s.nextID[collection]
	} else {
		stored["id"] = asInt(stored["id"])
		if id := asInt(stored["id"]); id > s.nextID[collection] {
			s.nextID[collection] = id
		}
	}
	if _, ok := stored["documentId"]; !ok {
		stored["documentId"] = strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	}
	if _, ok := stored["createdAt"]; !ok {
		stored["createdAt"] = s.Now().UTC().Format(TimeLayout)
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return stored
}

func (s *Server) find(collection, key string) map[string]any {
	for _, rec := range s.collections[collection] {
		if matchesKey(rec, key) {
			return rec
		}
	}
	return nil
}

func matchesKey(rec map[string]any, key string) bool {
	if rec["documentId"] == key {
		return true
	}
	id, err := strconv.ParseInt(key, 10, 64)
	return err == nil && asInt(rec["id"]) == id
}

// checkRelations rejects links to records that do not exist, the way the
// CMS does.
func (s *Server) checkRelations(collection string, data map[string]any) *Failure {
	for field, target := range s.relations[collection] {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}
		id := relationID(v)
		if id == 0 || s.find(target, strconv.FormatInt(id, 10)) == nil {
			return &Failure{
				Status:  http.StatusBadRequest,
				Name:    "ValidationError",
				Message: fmt.Sprintf("1 relation(s) of type api::%s.%s associated with this entity do not exist", target, target),
			}
		}
	}
	return nil
}

func (s *Server) decodeRelations(collection string, data map[string]any) map[string]any {
	out := copyMap(data)
	for field := range s.relations[collection] {
		if v, ok := out[field]; ok && v != nil {
			out[field] = relationID(v)
		}
	}
	return out
}

// relationID accepts 5, "5", {"connect":[{"id":5}]}, {"set":[{"id":5}]}
// and {"id":5}.
func relationID(v any) int64 {
	switch val := v.(type) {
	case map[string]any:
		for _, k := range []string{"connect", "set"} {
			if list, ok := val[k].([]any); ok && len(list) > 0 {
				return relationID(list[0])
			}
		}
		return asInt(val["id"])
	default:
		return asInt(val)
	}
}

// query filters and sorts a collection (already locked).
func (s *Server) query(collection string, q url.Values) []map[string]any {
	var rows []map[string]any
	for _, rec := range s.collections[collection] {
		if s.matches(collection, rec, q) {
			rows = append(rows, rec)
		}
	}

	if spec := q.Get("sort"); spec != "" {
		field, dir, _ := strings.Cut(spec, ":")
		desc := strings.EqualFold(dir, "desc")
		sort.SliceStable(rows, func(i, j int) bool {
			c := compare(rows[i][field], rows[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	return rows
}

var bracketPattern = regexp.MustCompile(`\[([^\]]*)\]`)

func (s *Server) matches(collection string, rec map[string]any, q url.Values) bool {
	for key, vals := range q {
		if !strings.HasPrefix(key, "filters[") || len(vals) == 0 {
			continue
		}
		var tokens []string
		for _, m := range bracketPattern.FindAllStringSubmatch(key, -1) {
			tokens = append(tokens, m[1])
		}
		if len(tokens) >= 2 && tokens[0] == "$and" {
			tokens = tokens[2:]
		}
		if len(tokens) < 2 {
			continue
		}
		op := tokens[len(tokens)-1]
		actual := s.lookup(collection, rec, tokens[:len(tokens)-1])
		if !evaluate(op, actual, vals[0]) {
			return false
		}
	}
	return true
}

func (s *Server) lookup(collection string, rec map[string]any, path []string) any {
	v := rec[path[0]]
	if len(path) == 1 {
		return v
	}
	target, ok := s.relations[collection][path[0]]
	if !ok || v == nil {
		return nil
	}
	if path[1] == "id" {
		return v
	}
	related := s.find(target, strconv.FormatInt(asInt(v), 10))
	if related == nil {
		return nil
	}
	return s.lookup(target, related, path[1:])
}

func evaluate(op string, actual any, want string) bool {
	switch op {
	case "$eq":
		return compare(actual, want) == 0
	case "$ne":
		return compare(actual, want) != 0
	case "$gte":
		return actual != nil && compare(actual, want) >= 0
	case "$lte":
		return actual != nil && compare(actual, want) <= 0
	case "$containsi":
		return strings.Contains(strings.ToLower(fmt.Sprint(actual)), strings.ToLower(want))
	case "$null":
		return (actual == nil) == (want == "true")
	default:
		return true
	}
}

// compare orders two values numerically when both are numbers, else as
// strings.
func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(toString(a), toString(b))
}

func (s *Server) render(collection string, rec map[string]any, populate bool) map[string]any {
	if s.shape == Nested {
		return s.renderNested(collection, rec, populate)
	}
	return s.renderFlat(collection, rec, populate)
}

func (s *Server) renderFlat(collection string, rec map[string]any, populate bool) map[string]any {
	out := map[string]any{}
	for k, v := range rec {
		if k == "password" {
			continue
		}
		target, isRel := s.relations[collection][k]
		if !isRel {
			out[k] = v
			continue
		}
		if !populate {
			continue
		}
		if v == nil {
			out[k] = nil
			continue
		}
		if related := s.find(target, strconv.FormatInt(asInt(v), 10)); related != nil {
			out[k] = s.renderFlat(target, related, false)
		} else {
			out[k] = nil
		}
	}
	return out
}

func (s *Server) renderNested(collection string, rec map[string]any, populate bool) map[string]any {
	attrs := map[string]any{}
	for k, v := range rec {
		if k == "id" || k == "password" {
			continue
		}
		target, isRel := s.relations[collection][k]
		if !isRel {
			attrs[k] = v
			continue
		}
		if !populate {
			continue
		}
		var data any
		if v != nil {
			if related := s.find(target, strconv.FormatInt(asInt(v), 10)); related != nil {
				data = s.renderNested(target, related, false)
			}
		}
		attrs[k] = map[string]any{"data": data}
	}
	return map[string]any{"id": rec["id"], "attributes": attrs}
}

// applyFields trims a rendered list row to the requested fields[] and
// removes hidden fields.
func (s *Server) applyFields(collection string, out map[string]any, q url.Values) {
	var keep []string
	for key, vals := range q {
		if strings.HasPrefix(key, "fields[") && len(vals) > 0 {
			keep = append(keep, vals[0])
		}
	}
	target := out
	if attrs, ok := out["attributes"].(map[string]any); ok {
		target = attrs
	}
	if len(keep) > 0 {
		allowed := map[string]bool{"id": true, "documentId": true}
		for _, k := range keep {
			allowed[k] = true
		}
		for k := range target {
			if _, isRel := s.relations[collection][k]; !allowed[k] && !isRel {
				delete(target, k)
			}
		}
	}
	for field := range s.hidden[collection] {
		delete(out, field)
		delete(target, field)
	}
}

func hasPopulate(q url.Values) bool {
	for key := range q {
		if strings.HasPrefix(key, "populate") {
			return true
		}
	}
	return false
}

func pagination(q url.Values) (page, size int) {
	page, size = 1, 25
	if v, err := strconv.Atoi(q.Get("pagination[page]")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("pagination[pageSize]")); err == nil && v > 0 {
		size = v
	}
	return page, size
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	if name == "" {
		name = http.StatusText(status)
	}
	writeJSON(w, status, map[string]any{
		"data": nil,
		"error": map[string]any{
			"status":  status,
			"name":    name,
			"message": message,
			"details": map[string]any{},
		},
	})
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func asInt(v any) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	case json.Number:
		n, _ := val.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
