package relay

import (
	"fmt"
	"os"
	"strconv"

	"peercall/native/internal/domain"

	"gopkg.in/yaml.v3"
)

// DirectoryFile is the on-disk room directory.
//
//	rooms:
//	  - room_id: abc
//	    participants:
//	      - user_id: "12"
//	        role: recruiter
//	        token: secret
type DirectoryFile struct {
	Rooms []DirectoryRoom `yaml:"rooms"`
}

type DirectoryRoom struct {
	RoomID       string                 `yaml:"room_id"`
	Participants []DirectoryParticipant `yaml:"participants"`
}

type DirectoryParticipant struct {
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"`
	// Token, when set, must match the token of the join request.
	Token string `yaml:"token,omitempty"`
}

// Directory authorizes joins. The file is read on every call so edits take
// effect without a restart. An empty path admits everyone to any room.
type Directory struct {
	path        string
	requireAuth bool
}

func NewDirectory(path string, requireAuth bool) *Directory {
	return &Directory{path: path, requireAuth: requireAuth}
}

// Authorize returns the denial reason for req, or "" when the join is
// allowed.
func (d *Directory) Authorize(req domain.JoinRequest) (string, error) {
	if req.RoomID == "" {
		return domain.DenyMissingRoomID, nil
	}
	if d.requireAuth && req.Token == "" {
		return domain.DenyMissingAuth, nil
	}
	if id, err := strconv.Atoi(req.UserID); err != nil || id <= 0 {
		return domain.DenyInvalidUserID, nil
	}
	if d.path == "" {
		return "", nil
	}

	file, err := d.load()
	if err != nil {
		return domain.DenyDBError, err
	}
	for _, room := range file.Rooms {
		if room.RoomID != req.RoomID {
			continue
		}
		for _, p := range room.Participants {
			if p.UserID != req.UserID {
				continue
			}
			if p.Token != "" && p.Token != req.Token {
				return domain.DenyUnauthorized, nil
			}
			return "", nil
		}
		return domain.DenyUnauthorized, nil
	}
	return domain.DenyRoomNotFound, nil
}

func (d *Directory) load() (*DirectoryFile, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var file DirectoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse directory %s: %w", d.path, err)
	}
	return &file, nil
}
