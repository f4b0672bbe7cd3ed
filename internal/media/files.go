package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Source describes one media file a stream reads from.
type Source struct {
	// Path is the absolute path to the file
	Path string

	// Kind is the track kind the file feeds
	Kind webrtc.RTPCodecType

	// Size is the file size in bytes
	Size int64
}

var sourceExtensions = map[webrtc.RTPCodecType][]string{
	webrtc.RTPCodecTypeAudio: {".ogg", ".opus"},
	webrtc.RTPCodecTypeVideo: {".ivf"},
}

// ValidateSources checks the configured media files. Empty paths are skipped;
// every problem is reported at once.
func ValidateSources(audioPath, videoPath string) (audio, video *Source, err error) {
	var problems []string

	if audioPath != "" {
		if audio, err = validateSource(audioPath, webrtc.RTPCodecTypeAudio); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if videoPath != "" {
		if video, err = validateSource(videoPath, webrtc.RTPCodecTypeVideo); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return nil, nil, fmt.Errorf("media validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return audio, video, nil
}

func validateSource(path string, kind webrtc.RTPCodecType) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	allowed := sourceExtensions[kind]
	supported := false
	for _, e := range allowed {
		if ext == e {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%s: unsupported %s file (want %s)", path, kind, strings.Join(allowed, ", "))
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: file does not exist", path)
		}
		return nil, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return &Source{Path: absPath, Kind: kind, Size: stat.Size()}, nil
}
