package config

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:        "/var/lib/fedora-setup",
		LogDir:          "/var/log/fedora-setup",
		UnitDir:         "/etc/systemd/system",
		DotfilesDir:     "~/.hyprdots",
		PreconfigDir:    "~/.hyprdots/preconfigured-files",
		ConnectivityURL: "https://fedoraproject.org",
		RequiredTools:   []string{"dnf", "rpm", "systemctl", "git"},
		MinFreeDiskGB:   20,
		Timezone:        "Asia/Dhaka",
		Git: []GitSetting{
			{Key: "user.name", Value: "aahsnr"},
			{Key: "user.email", Value: "ahsanur041@proton.me"},
			{Key: "credential.helper", Value: "/usr/libexec/git-core/git-credential-libsecret"},
			{Key: "core.preloadindex", Value: "true"},
			{Key: "core.fscache", Value: "true"},
			{Key: "gc.auto", Value: "256"},
		},
		Repos: RepoConfig{
			RPMFusion: true,
			Tainted:   true,
			OpenH264:  true,
			Copr: []string{
				"solopasha/hyprland",
				"sneexy/zen-browser",
				"lukenukem/asus-linux",
				"wehagy/protonplus",
			},
		},
		Packages: PackageConfig{
			Base: []string{
				"akmods", "bat", "bluez", "brightnessctl", "btop", "ccache",
				"chrony", "cliphist", "cronie", "curl", "distrobox", "dkms",
				"dnf-automatic", "dnf-plugins-core", "fail2ban", "gcc", "gcc-c++",
				"haveged", "rng-tools", "starship", "tar", "tmux", "tree",
				"unzip", "wget", "zen-browser", "zip", "zoxide", "zsh",
			},
			Editors: []string{
				"emacs", "neovim", "fzf", "fd-find", "ripgrep", "nodejs", "npm",
				"shellcheck", "shfmt", "pandoc", "direnv", "pipx",
			},
			Git: []string{
				"git-core", "git-credential-libsecret", "gnome-keyring",
				"git-delta", "highlight",
			},
			Multimedia: []string{
				"alsa-utils", "pipewire", "pipewire-alsa", "pipewire-gstreamer",
				"pipewire-pulseaudio", "pipewire-utils", "wireplumber",
				"mesa-va-drivers-freeworld", "mesa-vdpau-drivers-freeworld",
				"mesa-vulkan-drivers", "vulkan-tools", "ffmpeg", "mediainfo",
			},
			Groups: []string{"multimedia"},
			Hyprland: []string{
				"hyprland", "hypridle", "hyprpaper", "hyprlock", "hyprpicker",
				"hyprshot", "hyprsunset", "hyprland-contrib", "pyprland",
				"xdg-desktop-portal-hyprland",
			},
			ThemeDeps: []string{
				"sassc", "gtk-murrine-engine", "gnome-themes-extra", "ostree",
				"libappstream-glib",
			},
		},
		Flatpak: FlatpakConfig{
			Remote:    "flathub",
			RemoteURL: "https://dl.flathub.org/repo/flathub.flatpakrepo",
			Apps: []string{
				"com.github.tchx84.Flatseal",
				"org.onlyoffice.desktopeditors",
				"com.bitwarden.desktop",
				"io.github.alainm23.planify",
				"com.dec05eba.gpu_screen_recorder",
			},
			Overrides: []string{
				"--filesystem=~/.themes",
				"--filesystem=~/.local/share/themes",
				"--env=GTK_THEME=Colloid-Dark-Catppuccin",
			},
		},
		Hardware: HardwareConfig{
			NVIDIA: true,
			ASUS:   true,
			Swap: SwapConfig{
				Enabled:   true,
				Subvolume: "/var/swap",
				File:      "swapfile",
			},
		},
		Services: ServiceConfig{
			System: []string{"haveged", "rngd", "fail2ban"},
			User: []string{
				"wireplumber.service",
				"pipewire.socket",
				"pipewire-pulse.socket",
				"gnome-keyring-daemon.socket",
			},
			Hyprland: []string{"hyprpolkitagent", "hyprpaper", "hypridle"},
		},
		Themes: []ThemeConfig{
			{
				Name:   "colloid-gtk",
				Repo:   "https://github.com/vinceliuice/Colloid-gtk-theme.git",
				Marker: "/usr/share/themes/Colloid-Dark-Catppuccin",
				Args:   []string{"-l", "--tweaks", "catppuccin", "--tweaks", "normal"},
			},
			{
				Name:   "colloid-icons",
				Repo:   "https://github.com/vinceliuice/Colloid-icon-theme.git",
				Marker: "/usr/share/icons/Colloid-Catppuccin-Orange-Dark",
				Args:   []string{"-s", "catppuccin", "-t", "orange"},
			},
		},
		Tmux: TmuxConfig{
			Config:  "~/.hyprdots/.tmux.conf",
			TPMRepo: "https://github.com/tmux-plugins/tpm",
		},
		HomeManager: HomeManagerConfig{
			Source: "~/.hyprdots/.config/home-manager",
		},
	}
}
