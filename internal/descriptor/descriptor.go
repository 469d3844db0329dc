// Package descriptor reads and rewrites the values the release process owns in the Maven project descriptor.
package descriptor

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	// FileName is the project descriptor file name.
	FileName = "pom.xml"
	// SerializationIDProperty names the descriptor property holding the serialization version id.
	SerializationIDProperty = "otp.serialization.version.id"

	serializationElementTemplateConstant = "<%s>%s</%s>"
	readFileErrorTemplateConstant        = "unable to read %s: %w"
	writeFileErrorTemplateConstant       = "unable to write %s: %w"
	statFileErrorTemplateConstant        = "unable to inspect %s: %w"
	projectVersionMissingMessageConstant = "project version not found"
	serializationMissingMessageConstant  = "serialization version id not found"
	serializationValueMessageConstant    = "serialization version id value required"
)

var (
	// ErrProjectVersionNotFound indicates the descriptor has no version element.
	ErrProjectVersionNotFound = errors.New(projectVersionMissingMessageConstant)
	// ErrSerializationIDNotFound indicates the descriptor has no serialization version id property.
	ErrSerializationIDNotFound = errors.New(serializationMissingMessageConstant)
	// ErrSerializationIDEmpty indicates an empty replacement value.
	ErrSerializationIDEmpty = errors.New(serializationValueMessageConstant)

	projectVersionPattern  = regexp.MustCompile(`<version>(.*?)</version>`)
	serializationIDPattern = regexp.MustCompile(`<` + regexp.QuoteMeta(SerializationIDProperty) + `>\s*(.*?)\s*</` + regexp.QuoteMeta(SerializationIDProperty) + `>`)
)

// ReadProjectVersion returns the first version element of the descriptor.
func ReadProjectVersion(content string) (string, error) {
	match := projectVersionPattern.FindStringSubmatch(content)
	if match == nil {
		return "", ErrProjectVersionNotFound
	}
	return strings.TrimSpace(match[1]), nil
}

// ReadSerializationID returns the serialization version id property value.
func ReadSerializationID(content string) (string, error) {
	match := serializationIDPattern.FindStringSubmatch(content)
	if match == nil {
		return "", ErrSerializationIDNotFound
	}
	return strings.TrimSpace(match[1]), nil
}

// ReplaceSerializationID rewrites the first serialization version id element, leaving the rest of the content untouched.
func ReplaceSerializationID(content string, serializationID string) (string, error) {
	trimmedID := strings.TrimSpace(serializationID)
	if len(trimmedID) == 0 {
		return "", ErrSerializationIDEmpty
	}
	location := serializationIDPattern.FindStringIndex(content)
	if location == nil {
		return "", ErrSerializationIDNotFound
	}
	element := fmt.Sprintf(serializationElementTemplateConstant, SerializationIDProperty, trimmedID, SerializationIDProperty)
	return content[:location[0]] + element + content[location[1]:], nil
}

// File is a project descriptor on disk.
type File struct {
	path string
}

// NewFile returns a File for the descriptor at path.
func NewFile(path string) File {
	return File{path: path}
}

// Path returns the descriptor location.
func (file File) Path() string {
	return file.path
}

// Read returns the descriptor content.
func (file File) Read() (string, error) {
	content, readError := os.ReadFile(file.path)
	if readError != nil {
		return "", fmt.Errorf(readFileErrorTemplateConstant, file.path, readError)
	}
	return string(content), nil
}

// SetSerializationID rewrites the serialization version id in place, preserving the file mode.
func (file File) SetSerializationID(serializationID string) error {
	content, readError := file.Read()
	if readError != nil {
		return readError
	}
	updated, replaceError := ReplaceSerializationID(content, serializationID)
	if replaceError != nil {
		return replaceError
	}
	fileInfo, statError := os.Stat(file.path)
	if statError != nil {
		return fmt.Errorf(statFileErrorTemplateConstant, file.path, statError)
	}
	if writeError := os.WriteFile(file.path, []byte(updated), fileInfo.Mode().Perm()); writeError != nil {
		return fmt.Errorf(writeFileErrorTemplateConstant, file.path, writeError)
	}
	return nil
}
