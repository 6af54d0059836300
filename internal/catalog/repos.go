package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/aahsnr/fedora-setup/internal/task"
)

const rpmFusionMirror = "https://mirrors.rpmfusion.org"

// RPMFusionURL returns the release RPM URL of the free or nonfree repository
// for a Fedora version.
func RPMFusionURL(flavor, fedoraVersion string) string {
	return fmt.Sprintf("%s/%s/fedora/rpmfusion-%s-release-%s.noarch.rpm", rpmFusionMirror, flavor, flavor, fedoraVersion)
}

func (b *builder) repos() []task.Task {
	cfg := b.cfg
	preconfig := cfg.UserPath(cfg.PreconfigDir)

	tasks := []task.Task{
		&task.File{
			Info:   info("repos:dnf-conf", "Install preconfigured dnf.conf"),
			Path:   "/etc/dnf/dnf.conf",
			Source: filepath.Join(preconfig, "dnf.conf"),
		},
		&task.File{
			Info:   info("repos:profile-variables", "Install shell profile variables"),
			Path:   "/etc/profile.d/variables.sh",
			Source: filepath.Join(preconfig, "variables.sh"),
		},
	}

	if cfg.Repos.RPMFusion {
		for _, flavor := range []string{"free", "nonfree"} {
			tasks = append(tasks, &task.Repository{
				Info:   info("repos:rpmfusion-"+flavor, "Enable RPM Fusion "+flavor),
				Kind:   task.RepoReleaseRPM,
				ID:     "rpmfusion-" + flavor,
				Source: RPMFusionURL(flavor, cfg.FedoraVersion),
			})
		}
	}
	if cfg.Repos.Tainted {
		tasks = append(tasks, &task.Repository{
			Info:   info("repos:rpmfusion-nonfree-tainted", "Enable RPM Fusion nonfree tainted"),
			Kind:   task.RepoReleaseRPM,
			ID:     "rpmfusion-nonfree-tainted",
			Source: "rpmfusion-nonfree-release-tainted",
		})
	}
	if cfg.Repos.OpenH264 {
		tasks = append(tasks, &task.Repository{
			Info: info("repos:openh264", "Enable Cisco OpenH264"),
			Kind: task.RepoConfigManager,
			ID:   "fedora-cisco-openh264",
		})
	}
	for _, project := range cfg.Repos.Copr {
		tasks = append(tasks, &task.Repository{
			Info: info("repos:copr:"+project, "Enable COPR "+project),
			Kind: task.RepoCopr,
			ID:   project,
		})
	}
	return tasks
}
