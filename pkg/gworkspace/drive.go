package gworkspace

import (
	"context"
	"fmt"
	"strings"

	drive "google.golang.org/api/drive/v3"
)

// File is the subset of Drive metadata the service tracks.
type File struct {
	ID   string
	Name string
	URL  string
}

// FolderURL returns the browser link of a folder.
func FolderURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}

// DocumentURL returns the browser link of a document.
func DocumentURL(id string) string {
	return "https://docs.google.com/document/d/" + id + "/edit"
}

// FindFolder returns the first non-trashed folder with the exact name under parentID, or nil.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (*File, error) {
	query := fmt.Sprintf("mimeType = '%s' and name = '%s' and trashed = false", folderMimeType, escapeQuery(name))
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}

	var found *drive.File
	err := c.call(ctx, "drive.find_folder", func(ctx context.Context) error {
		list, err := c.drive.Files.List().
			Q(query).
			Fields("files(id, name, webViewLink)").
			PageSize(1).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(list.Files) > 0 {
			found = list.Files[0]
		}
		return nil
	})
	if err != nil || found == nil {
		return nil, err
	}
	return folderFile(found), nil
}

// CreateFolder creates a folder under parentID (or the drive root when empty).
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*File, error) {
	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	var created *drive.File
	err := c.call(ctx, "drive.create_folder", func(ctx context.Context) error {
		var err error
		created, err = c.drive.Files.Create(meta).
			Fields("id, name, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return folderFile(created), nil
}

// CreateDocument creates an empty document inside folderID.
func (c *Client) CreateDocument(ctx context.Context, title, folderID string) (*File, error) {
	meta := &drive.File{Name: title, MimeType: documentMimeType, Parents: []string{folderID}}

	var created *drive.File
	err := c.call(ctx, "drive.create_document", func(ctx context.Context) error {
		var err error
		created, err = c.drive.Files.Create(meta).
			Fields("id, name, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return documentFile(created), nil
}

// CopyDocument duplicates sourceID into folderID, preserving its formatting.
func (c *Client) CopyDocument(ctx context.Context, sourceID, title, folderID string) (*File, error) {
	meta := &drive.File{Name: title, Parents: []string{folderID}}

	var copied *drive.File
	err := c.call(ctx, "drive.copy_document", func(ctx context.Context) error {
		var err error
		copied, err = c.drive.Files.Copy(sourceID, meta).
			Fields("id, name, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return documentFile(copied), nil
}

// GrantCommenter gives email comment access to a single file without Drive's own notification mail.
func (c *Client) GrantCommenter(ctx context.Context, fileID, email string) error {
	perm := &drive.Permission{Type: "user", Role: "commenter", EmailAddress: email}
	return c.call(ctx, "drive.grant_commenter", func(ctx context.Context) error {
		_, err := c.drive.Permissions.Create(fileID, perm).
			SendNotificationEmail(false).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
		return err
	})
}

func folderFile(f *drive.File) *File {
	url := f.WebViewLink
	if url == "" {
		url = FolderURL(f.Id)
	}
	return &File{ID: f.Id, Name: f.Name, URL: url}
}

func documentFile(f *drive.File) *File {
	url := f.WebViewLink
	if url == "" {
		url = DocumentURL(f.Id)
	}
	return &File{ID: f.Id, Name: f.Name, URL: url}
}

func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
