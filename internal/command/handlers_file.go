package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/objectstore"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
)

// putExpire picks the presign-PUT expiry by declared suffix: images use
// S3.PresignPutImageExpire, every other suffix S3.PresignPutFileExpire.
func (d *Dispatcher) putExpire(suffix string) time.Duration {
	switch suffix {
	case "jpg", "jpeg", "png", "gif", "webp":
		return time.Duration(d.Cfg.S3.PresignPutImageExpire) * time.Second
	default:
		return time.Duration(d.Cfg.S3.PresignPutFileExpire) * time.Second
	}
}

// handleUploadFileRequest implements §4.G UploadFileRequest: a
// client-declared hash that already has a cached public URL short
// circuits straight to Existed; otherwise a fresh presigned PUT is
// issued and an upload ticket is persisted against it.
func (d *Dispatcher) handleUploadFileRequest(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.UploadFileRequestData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespUploadFileRequestResponse, model.UploadFileRequestResponse{State: model.StateContentError})
		return
	}

	if url, err := d.getOrRenewPublicURL(ctx, req.Hash); err == nil && url != "" {
		actor.Send(model.RespUploadFileRequestResponse, model.UploadFileRequestResponse{State: model.StateExisted, URL: url})
		return
	}

	presigned, err := d.Objects.PresignPut(ctx, req.Suffix, d.putExpire(req.Suffix))
	if err != nil {
		actor.Send(model.RespUploadFileRequestResponse, model.UploadFileRequestResponse{State: model.StateDatabaseError})
		return
	}

	uploadID, err := d.Store.WriteUploadTicket(ctx, model.UploadTicket{
		UserID:     userID,
		ClientHash: req.Hash,
		FileSize:   req.Size,
		ObjectPath: presigned.Path,
	})
	if err != nil {
		actor.Send(model.RespUploadFileRequestResponse, model.UploadFileRequestResponse{State: model.StateDatabaseError})
		return
	}

	actor.Send(model.RespUploadFileRequestResponse, model.UploadFileRequestResponse{
		State:    model.StateApprove,
		URL:      presigned.URL,
		UploadID: uploadID,
	})
}

// handleFileUploaded implements §4.G FileUploaded: the ticket owner is
// verified, the object's HEAD metadata is checked against the
// originally declared hash and size, and on success a presigned GET is
// minted and cached for future UploadFileRequest/GetFileUrl hits.
func (d *Dispatcher) handleFileUploaded(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.FileUploadedData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateContentError})
		return
	}

	ticket, err := d.Store.GetUploadTicket(ctx, req.UploadID)
	if err != nil {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateObjectNotFound})
		return
	}
	if ticket.UserID != userID {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateNoPermission})
		return
	}

	info, err := d.Objects.HeadObject(ctx, ticket.ObjectPath)
	if err == objectstore.ErrNotFound {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateFileNotExisted})
		return
	}
	if err != nil {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateDatabaseError})
		return
	}
	if info.ETag != ticket.ClientHash || info.ContentLength != ticket.FileSize {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateContentError})
		return
	}

	expire := time.Duration(d.Cfg.S3.PresignGetExpire) * time.Second
	url, err := d.Objects.PresignGet(ctx, ticket.ObjectPath, expire)
	if err != nil {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateDatabaseError})
		return
	}

	if err := d.Store.StorePublicURL(ctx, ticket.ClientHash, model.PresignedURL{
		Path:     ticket.ObjectPath,
		URL:      url,
		ExpireAt: time.Now().Add(expire).Unix(),
	}); err != nil {
		actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateDatabaseError})
		return
	}

	actor.Send(model.RespFileUploadedResponse, model.FileUploadedResponse{State: model.StateSuccess, URL: url})
}

// handleGetFileUrl implements §4.G GetFileUrl: a cache lookup by
// client-declared hash, auto-renewing the presigned URL if it has
// expired since it was cached.
func (d *Dispatcher) handleGetFileUrl(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetFileUrlData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetFileUrlResponse, model.GetFileUrlResponse{State: model.StateContentError})
		return
	}

	url, err := d.getOrRenewPublicURL(ctx, req.Hash)
	if err != nil {
		actor.Send(model.RespGetFileUrlResponse, model.GetFileUrlResponse{State: model.StateDatabaseError})
		return
	}
	if url == "" {
		actor.Send(model.RespGetFileUrlResponse, model.GetFileUrlResponse{State: model.StateFileNotExisted})
		return
	}
	actor.Send(model.RespGetFileUrlResponse, model.GetFileUrlResponse{State: model.StateSuccess, URL: url})
}

// getOrRenewPublicURL implements the object-store cache contract: a hit
// still within its expiry is returned as cached; an expired hit is
// re-signed via PresignGet and the cache entry rewritten before being
// returned. Returns an empty string and nil error when no cache entry
// exists for hash.
func (d *Dispatcher) getOrRenewPublicURL(ctx context.Context, hash string) (string, error) {
	cached, err := d.Store.GetCachedPublicURL(ctx, hash)
	if err != nil || cached == nil {
		return "", err
	}
	if time.Now().Unix() < cached.ExpireAt {
		return cached.URL, nil
	}

	expire := time.Duration(d.Cfg.S3.PresignGetExpire) * time.Second
	url, err := d.Objects.PresignGet(ctx, cached.Path, expire)
	if err != nil {
		return "", err
	}
	renewed := model.PresignedURL{
		Path:     cached.Path,
		URL:      url,
		ExpireAt: time.Now().Add(expire).Unix(),
	}
	if err := d.Store.StorePublicURL(ctx, hash, renewed); err != nil {
		return "", err
	}
	return url, nil
}
