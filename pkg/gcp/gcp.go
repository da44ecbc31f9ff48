// Package gcp holds the bits the Pub/Sub and BigQuery clients share.
package gcp

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
)

var ErrProjectIDRequired = errors.New("gcp project id is required")

// ProjectID returns the trimmed project or ErrProjectIDRequired.
func ProjectID(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectIDRequired
	}
	return id, nil
}

// ClientOptions picks inline JSON credentials over a credentials file. With
// neither set the SDK falls back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	}
	return nil
}

// ResourceName expands a short id into projects/<project>/<collection>/<id>.
// Names that are already fully qualified pass through.
func ResourceName(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", project, collection, name)
}
