package module

import (
	"fmt"
	"strconv"
)

// rebootWaitModule checks whether a target needs a reboot and optionally
// performs one after a countdown.
type rebootWaitModule struct{}

func (rebootWaitModule) Name() string { return "reboot-wait" }

func (rebootWaitModule) Build(args []string) (string, error) {
	delay := 5
	var checkOnly, force bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--delay":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--delay requires a value")
			}
			i++
			v, err := strconv.Atoi(args[i])
			if err != nil || v < 0 {
				return "", fmt.Errorf("invalid --delay value %q", args[i])
			}
			delay = v
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		default:
			return "", fmt.Errorf("unknown argument %q", args[i])
		}
	}

	if checkOnly {
		return bashC(rebootCheckScript), nil
	}
	return bashC(rebootScript(delay, force)), nil
}

// rebootCheckScript exits 1 when a reboot is pending, 0 otherwise, so the
// per-host exit code carries the answer.
const rebootCheckScript = `REBOOT_NEEDED=false

if [ -f /var/run/reboot-required ]; then
    echo "Reboot required: /var/run/reboot-required exists"
    REBOOT_NEEDED=true
fi

CURRENT_KERNEL=$(uname -r)
if command -v dpkg >/dev/null 2>&1; then
    LATEST_KERNEL=$(dpkg -l 'linux-image-*' | grep '^ii' | awk '{print $2}' | sed 's/linux-image-//' | sort -V | tail -1)
elif command -v rpm >/dev/null 2>&1; then
    LATEST_KERNEL=$(rpm -qa kernel | sed 's/kernel-//' | sort -V | tail -1)
fi
if [ -n "$LATEST_KERNEL" ] && [ "$CURRENT_KERNEL" != "$LATEST_KERNEL" ]; then
    echo "Reboot required: kernel update ($CURRENT_KERNEL -> $LATEST_KERNEL)"
    REBOOT_NEEDED=true
fi

if [ "$REBOOT_NEEDED" = "true" ]; then
    exit 1
fi
echo "No reboot required"`

func rebootScript(delay int, force bool) string {
	return fmt.Sprintf(`set -e
DELAY=%d
FORCE=%t

REBOOT_NEEDED=false
if [ -f /var/run/reboot-required ]; then
    REBOOT_NEEDED=true
fi

CURRENT_KERNEL=$(uname -r)
if command -v dpkg >/dev/null 2>&1; then
    LATEST_KERNEL=$(dpkg -l 'linux-image-*' | grep '^ii' | awk '{print $2}' | sed 's/linux-image-//' | sort -V | tail -1)
elif command -v rpm >/dev/null 2>&1; then
    LATEST_KERNEL=$(rpm -qa kernel | sed 's/kernel-//' | sort -V | tail -1)
fi
if [ -n "$LATEST_KERNEL" ] && [ "$CURRENT_KERNEL" != "$LATEST_KERNEL" ]; then
    REBOOT_NEEDED=true
fi

if [ "$REBOOT_NEEDED" = "true" ] || [ "$FORCE" = "true" ]; then
    USERS=$(who | wc -l)
    if [ "$USERS" -gt 0 ]; then
        echo "Warning: $USERS users currently logged in"
        who
    fi
    sync
    echo "Rebooting in $DELAY seconds"
    sleep "$DELAY"
    shutdown -r now
else
    echo "No reboot required"
fi`, delay, force)
}
