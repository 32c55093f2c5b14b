package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/google/uuid"
)

// ConfigFileName is the well-known name of the single config document.
// At most one file with this name should exist in the app data folder.
const ConfigFileName = "app_config.json"

// appDataFolder is the Drive alias for the application-private storage area.
const appDataFolder = "appDataFolder"

const mimeTypeJSON = "application/json"

// File identifies a remote storage object once found or created.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fileMetadata is the metadata part of a multipart upload. Parents is set
// only on creation; Drive rejects parent changes on update, and updates
// must leave folder placement unchanged anyway.
type fileMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

// FindConfigFile searches the app data folder for the config document by
// exact name, excluding trashed files. Returns nil with no error when no
// match exists; returns the first match otherwise.
func (c *Client) FindConfigFile(ctx context.Context, token string) (*File, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		ConfigFileName, appDataFolder)

	params := url.Values{}
	params.Set("q", query)
	params.Set("spaces", appDataFolder)
	params.Set("fields", "files(id, name)")

	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/files?"+params.Encode(), token, "", nil)
	if err != nil {
		return nil, fmt.Errorf("searching for %s: %w", ConfigFileName, err)
	}
	defer resp.Body.Close()

	// Decode with a raw files field first so a missing or non-array value is
	// caught explicitly instead of silently producing an empty list.
	var parsed struct {
		Files json.RawMessage `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding file list: %w", ErrBadResponse)
	}

	if len(parsed.Files) == 0 || string(parsed.Files) == "null" {
		return nil, fmt.Errorf("file list missing files array: %w", ErrBadResponse)
	}

	var files []File
	if err := json.Unmarshal(parsed.Files, &files); err != nil {
		return nil, fmt.Errorf("file list files field is not an array: %w", ErrBadResponse)
	}

	if len(files) == 0 {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	return &files[0], nil
}

// SaveConfigFile uploads the config document. With an empty existingID it
// creates a new file inside the app data folder; otherwise it updates the
// existing file's content in place. Returns the file id of the saved
// document: every write after the first must target this id, since Drive
// assigns opaque ids and has no upsert-by-name primitive.
func (c *Client) SaveConfigFile(
	ctx context.Context, token string, content any, existingID string,
) (string, error) {
	meta := fileMetadata{
		Name:     ConfigFileName,
		MimeType: mimeTypeJSON,
	}
	if existingID == "" {
		meta.Parents = []string{appDataFolder}
	}

	body, contentType, err := encodeMultipart(meta, content)
	if err != nil {
		return "", err
	}

	method := http.MethodPost
	uploadURL := c.uploadURL + "/files?uploadType=multipart"

	if existingID != "" {
		method = http.MethodPatch
		uploadURL = c.uploadURL + "/files/" + url.PathEscape(existingID) + "?uploadType=multipart"
	}

	resp, err := c.do(ctx, method, uploadURL, token, contentType, body)
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", ConfigFileName, err)
	}
	defer resp.Body.Close()

	var saved File
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", ErrBadResponse)
	}

	if saved.ID == "" {
		return "", fmt.Errorf("upload response missing file id: %w", ErrBadResponse)
	}

	return saved.ID, nil
}

// LoadConfigFile downloads the raw content of the config document by id.
func (c *Client) LoadConfigFile(
	ctx context.Context, token, fileID string,
) (json.RawMessage, error) {
	u := c.baseURL + "/files/" + url.PathEscape(fileID) + "?alt=media"

	resp, err := c.do(ctx, http.MethodGet, u, token, "", nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	var content json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding file content: %w", ErrBadResponse)
	}

	return content, nil
}

// encodeMultipart builds the two-part multipart/related body: JSON file
// metadata followed by the pretty-printed JSON document. The boundary is
// derived from a UUID so it cannot collide with the payload.
func encodeMultipart(meta fileMetadata, content any) (*bytes.Buffer, string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("drive: encoding file metadata: %w", err)
	}

	contentJSON, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("drive: encoding file content: %w", err)
	}

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary("driveconf_" + uuid.NewString()); err != nil {
		return nil, "", fmt.Errorf("drive: setting multipart boundary: %w", err)
	}

	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeTypeJSON + "; charset=UTF-8"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("drive: creating metadata part: %w", err)
	}

	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, "", fmt.Errorf("drive: writing metadata part: %w", err)
	}

	contentPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeTypeJSON},
	})
	if err != nil {
		return nil, "", fmt.Errorf("drive: creating content part: %w", err)
	}

	if _, err := contentPart.Write(contentJSON); err != nil {
		return nil, "", fmt.Errorf("drive: writing content part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("drive: finalizing multipart body: %w", err)
	}

	return &buf, "multipart/related; boundary=" + w.Boundary(), nil
}
