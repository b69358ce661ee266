// Package mutation performs CMS writes, including upload-then-link
// workflows, and reports each outcome as a patch for local list state.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/session"
)

// UploadFailedError is returned when the media upload step fails. The
// dependent write is never attempted.
type UploadFailedError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadFailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed (%d): %s", e.Status, e.Message)
	}
	return "upload failed: " + e.Message
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// Link attaches an uploaded media id to a relation field.
type Link struct {
	Field   string
	MediaID int64
}

// Write describes a create (zero Key) or an update.
type Write struct {
	Collection string
	Key        Key
	Payload    map[string]any
	Schema     normalize.Schema

	// DocumentFirst addresses an update by document id before falling
	// back to the numeric id. See UpdateWithFallback.
	DocumentFirst bool
}

// Attachment is a file to upload and link into Field before the write.
type Attachment struct {
	Field string
	File  cms.UploadFile
}

// Coordinator runs writes against the CMS.
type Coordinator struct {
	client     *cms.Client
	log        *slog.Logger
	patchOn405 bool
}

// NewCoordinator returns a Coordinator. A nil logger discards output.
func NewCoordinator(client *cms.Client, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{client: client, log: log}
}

// WithPatchRetry returns a copy of c whose updates are retried once as
// PATCH when the endpoint rejects PUT with 405.
func (c *Coordinator) WithPatchRetry() *Coordinator {
	cp := *c
	cp.patchOn405 = true
	return &cp
}

// UploadThenLink uploads file and returns a link of its media id into
// field.
func (c *Coordinator) UploadThenLink(
	ctx context.Context,
	sess *session.Session,
	file cms.UploadFile,
	field string,
) (Link, error) {
	files, err := c.client.Upload(ctx, sess.BearerToken(), file)
	if err != nil {
		c.log.Warn("upload failed", "file", file.Name, "err", err)
		msg := err.Error()
		var apiErr *cms.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		return Link{}, &UploadFailedError{Status: cms.StatusOf(err), Message: msg, Err: err}
	}
	if len(files) == 0 {
		return Link{}, &UploadFailedError{Message: "the CMS returned no uploaded files"}
	}

	rec, err := normalize.Normalize(files[0], normalize.Schema{})
	if err != nil || rec.ID() == 0 {
		return Link{}, &UploadFailedError{Message: "uploaded file has no id"}
	}
	return Link{Field: field, MediaID: rec.ID()}, nil
}

// CreateOrUpdateWithMedia merges link into the payload when present and
// performs the create or update.
func (c *Coordinator) CreateOrUpdateWithMedia(
	ctx context.Context,
	sess *session.Session,
	w Write,
	link *Link,
) Result {
	payload := make(map[string]any, len(w.Payload)+1)
	for k, v := range w.Payload {
		payload[k] = v
	}
	if link != nil && link.Field != "" && link.MediaID != 0 {
		payload[link.Field] = link.MediaID
	}

	if w.Key.IsZero() {
		raw, err := c.client.Write(ctx, http.MethodPost, sess.BearerToken(), cms.CollectionPath(w.Collection), payload)
		if err != nil {
			c.log.Warn("create failed", "collection", w.Collection, "err", err)
			return Failed(err)
		}
		return c.patch(OpInsert, Key{}, raw, w.Schema)
	}

	update := c.Update
	if w.DocumentFirst {
		update = c.UpdateWithFallback
	}
	raw, err := update(ctx, sess, w.Collection, w.Key, payload)
	if err != nil {
		return Failed(err)
	}
	return c.patch(OpReplace, w.Key, raw, w.Schema)
}

// Submit uploads the attachment, if any, and then writes. An upload
// failure aborts before the write.
func (c *Coordinator) Submit(
	ctx context.Context,
	sess *session.Session,
	w Write,
	att *Attachment,
) Result {
	var link *Link
	if att != nil {
		l, err := c.UploadThenLink(ctx, sess, att.File, att.Field)
		if err != nil {
			return Failed(err)
		}
		link = &l
	}
	return c.CreateOrUpdateWithMedia(ctx, sess, w, link)
}

// Update sends payload with PUT. A coordinator built with WithPatchRetry
// retries once as PATCH when the endpoint rejects PUT with 405.
func (c *Coordinator) Update(
	ctx context.Context,
	sess *session.Session,
	collection string,
	key Key,
	payload map[string]any,
) (map[string]any, error) {
	if key.IsZero() {
		return nil, cms.ErrNoIdentifier
	}
	path := cms.CollectionPath(collection, key.Segment())

	raw, err := c.client.Write(ctx, http.MethodPut, sess.BearerToken(), path, payload)
	if c.patchOn405 && cms.IsMethodNotAllowed(err) {
		c.log.Debug("PUT not allowed, retrying as PATCH", "path", path)
		raw, err = c.client.Write(ctx, http.MethodPatch, sess.BearerToken(), path, payload)
	}
	if err != nil {
		c.log.Warn("update failed", "path", path, "err", err)
		return nil, err
	}
	return raw, nil
}

// UpdateWithFallback addresses the record by document id first and, when
// that path answers 404, by numeric id. A key holding only one of the two
// gets a single attempt.
func (c *Coordinator) UpdateWithFallback(
	ctx context.Context,
	sess *session.Session,
	collection string,
	key Key,
	payload map[string]any,
) (map[string]any, error) {
	if key.DocumentID == "" || key.ID == 0 {
		return c.Update(ctx, sess, collection, key, payload)
	}
	raw, err := c.Update(ctx, sess, collection, ByDocumentID(key.DocumentID), payload)
	if cms.IsNotFound(err) {
		c.log.Debug("document path not found, retrying by id", "collection", collection, "key", key)
		return c.Update(ctx, sess, collection, ByID(key.ID), payload)
	}
	return raw, err
}

// DeleteWithFallback deletes by document id first and, on 404, by
// numeric id.
func (c *Coordinator) DeleteWithFallback(
	ctx context.Context,
	sess *session.Session,
	collection string,
	key Key,
) Result {
	if key.DocumentID == "" || key.ID == 0 {
		return c.Delete(ctx, sess, collection, key)
	}
	res := c.Delete(ctx, sess, collection, ByDocumentID(key.DocumentID))
	if res.Failed != nil && res.Failed.Kind == cms.KindNotFound {
		res = c.Delete(ctx, sess, collection, ByID(key.ID))
	}
	if res.Applied != nil {
		res.Applied.Key = key
	}
	return res
}

// Delete removes the record named by key.
func (c *Coordinator) Delete(
	ctx context.Context,
	sess *session.Session,
	collection string,
	key Key,
) Result {
	if key.IsZero() {
		return Failed(cms.ErrNoIdentifier)
	}
	path := cms.CollectionPath(collection, key.Segment())
	if err := c.client.Delete(ctx, sess.BearerToken(), path, nil); err != nil {
		c.log.Warn("delete failed", "path", path, "err", err)
		return Failed(err)
	}
	return applied(LocalPatch{Op: OpRemove, Key: key})
}

func (c *Coordinator) patch(op Op, key Key, raw map[string]any, schema normalize.Schema) Result {
	rec, err := normalize.Normalize(raw, schema)
	if err != nil {
		return Failed(&cms.MalformedError{Reason: err.Error()})
	}
	if got := KeyOf(rec); !got.IsZero() {
		key = got
	}
	return applied(LocalPatch{Op: op, Key: key, Record: rec})
}
