package fetcher

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var driveFileID = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

var driveIDParam = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsDriveLink reports whether raw points at Google Drive.
func IsDriveLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "drive.google.com" || host == "docs.google.com"
}

// DriveDirectURL rewrites a Drive share link ("/file/d/<id>/view" or
// "open?id=<id>") into its direct download URL.
func DriveDirectURL(raw string) (string, error) {
	if !IsDriveLink(raw) {
		return "", eris.Errorf("drive: not a google drive link: %q", raw)
	}

	id := ""
	if m := driveFileID.FindStringSubmatch(raw); m != nil {
		id = m[1]
	} else if u, err := url.Parse(raw); err == nil {
		id = u.Query().Get("id")
	}
	if id == "" || !driveIDParam.MatchString(id) {
		return "", eris.Errorf("drive: no file id in link %q", raw)
	}

	q := url.Values{}
	q.Set("export", "download")
	q.Set("id", id)
	q.Set("confirm", "t")
	return "https://drive.google.com/uc?" + q.Encode(), nil
}
