package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// ProjectsDir is the directory below the data root holding one directory per project.
const ProjectsDir = "projects"

// ProjectDir returns the directory of a project below the data root.
func ProjectDir(root string, projectID int) string {
	return filepath.Join(root, ProjectsDir, strconv.Itoa(projectID))
}

// AttachmentName returns the file name of a payment attachment.
func AttachmentName(groupID, paymentID int, ext string) string {
	return fmt.Sprintf("%d_%d.%s", groupID, paymentID, ext)
}
