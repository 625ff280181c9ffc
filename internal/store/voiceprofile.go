package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// VoiceProfile is a persistent named identity represented by one or more
// L2-normalized embeddings plus a centroid. Profiles are created out-of-band
// by an enrollment tool (outside this pipeline's scope) and are read-only
// during ingestion.
type VoiceProfile struct {
	Name       string      `json:"name"`
	Embeddings [][]float32 `json:"embeddings"`
	Centroid   []float32   `json:"centroid"`
}

// VoiceProfileRepository loads enrolled voice profiles from a directory of
// JSON files, one per profile, and serves them read-only to the speaker
// identifier.
type VoiceProfileRepository struct {
	profiles map[string]VoiceProfile
}

// LoadVoiceProfiles reads every *.json file in dir as a VoiceProfile.
func LoadVoiceProfiles(dir string) (*VoiceProfileRepository, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read voice profile dir: %w", err)
	}

	repo := &VoiceProfileRepository{profiles: make(map[string]VoiceProfile)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voice profile %s: %w", entry.Name(), err)
		}
		var profile VoiceProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("decode voice profile %s: %w", entry.Name(), err)
		}
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(entry.Name(), ".json")
		}
		if len(profile.Centroid) == 0 && len(profile.Embeddings) > 0 {
			profile.Centroid = centroidOf(profile.Embeddings)
		}
		repo.profiles[profile.Name] = profile
	}
	return repo, nil
}

// All returns every enrolled profile.
func (r *VoiceProfileRepository) All() []VoiceProfile {
	if r == nil {
		return nil
	}
	profiles := make([]VoiceProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	return profiles
}

// ByName returns the profile registered under name, if any.
func (r *VoiceProfileRepository) ByName(name string) (VoiceProfile, bool) {
	if r == nil {
		return VoiceProfile{}, false
	}
	p, ok := r.profiles[name]
	return p, ok
}

func centroidOf(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, emb := range embeddings {
		for i, v := range emb {
			if i >= dim {
				break
			}
			sum[i] += float64(v)
		}
	}
	centroid := make([]float32, dim)
	var norm float64
	for i, v := range sum {
		avg := v / float64(len(embeddings))
		centroid[i] = float32(avg)
		norm += avg * avg
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return centroid
	}
	for i := range centroid {
		centroid[i] = float32(float64(centroid[i]) / norm)
	}
	return centroid
}
