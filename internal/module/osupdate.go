package module

import (
	"fmt"
)

// osUpdateModule updates packages on every target, detecting the package
// manager remotely.
type osUpdateModule struct{}

func (osUpdateModule) Name() string { return "os-update" }

func (osUpdateModule) Build(args []string) (string, error) {
	var securityOnly, autoReboot, dryRun bool
	for _, arg := range args {
		switch arg {
		case "--security-only":
			securityOnly = true
		case "--auto-reboot":
			autoReboot = true
		case "--dry-run":
			dryRun = true
		default:
			return "", fmt.Errorf("unknown argument %q", arg)
		}
	}

	script := fmt.Sprintf(`set -e
SECURITY_ONLY=%t
AUTO_REBOOT=%t
DRY_RUN=%t

echo "Starting OS update (security_only=$SECURITY_ONLY, auto_reboot=$AUTO_REBOOT)"

DISK_USAGE=$(df / | tail -1 | awk '{print $5}' | sed 's/%%//')
if [ "$DISK_USAGE" -gt 90 ]; then
    echo "Error: disk usage is $DISK_USAGE%% - aborting" >&2
    exit 1
fi

if command -v apt-get >/dev/null 2>&1; then
    echo "Detected: Debian/Ubuntu"
    export DEBIAN_FRONTEND=noninteractive
    if [ "$DRY_RUN" = "true" ]; then
        apt-get update -qq
        apt-get upgrade -s
    else
        apt-get update -qq
        apt-get upgrade -y --with-new-pkgs \
            -o Dpkg::Options::="--force-confdef" \
            -o Dpkg::Options::="--force-confold"
        apt-get autoremove -y || true
    fi
    if [ -f /var/run/reboot-required ] && [ "$AUTO_REBOOT" = "true" ]; then
        echo "Reboot required - scheduling in 1 minute"
        shutdown -r +1 "System updated - rebooting"
    fi
elif command -v dnf >/dev/null 2>&1; then
    echo "Detected: Fedora/RHEL"
    if [ "$DRY_RUN" = "true" ]; then
        dnf check-update || true
    else
        if [ "$SECURITY_ONLY" = "true" ]; then
            dnf upgrade -y --security
        else
            dnf upgrade -y
        fi
        dnf autoremove -y || true
    fi
    if [ "$AUTO_REBOOT" = "true" ] && ! dnf needs-restarting -r >/dev/null 2>&1; then
        echo "Reboot required - scheduling in 1 minute"
        shutdown -r +1 "System updated - rebooting"
    fi
elif command -v yum >/dev/null 2>&1; then
    echo "Detected: RHEL/CentOS"
    if [ "$DRY_RUN" = "true" ]; then
        yum check-update || true
    else
        if [ "$SECURITY_ONLY" = "true" ]; then
            yum update -y --security
        else
            yum update -y
        fi
        yum autoremove -y || true
    fi
    if [ "$AUTO_REBOOT" = "true" ] && ! needs-restarting -r >/dev/null 2>&1; then
        echo "Reboot required - scheduling in 1 minute"
        shutdown -r +1 "System updated - rebooting"
    fi
else
    echo "Error: no supported package manager found" >&2
    exit 1
fi

echo "Update completed successfully"`, securityOnly, autoReboot, dryRun)

	return bashC(script), nil
}
