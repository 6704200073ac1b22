package module

import (
	"fmt"
	"regexp"
	"strings"
)

// sudoModule manages sudo access for a user on every target: grant with
// optional command templates and expiry, list current privileges, or
// revoke.
type sudoModule struct{}

func (sudoModule) Name() string { return "sudo" }

var usernameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func validUsername(name string) bool {
	return name != "" && len(name) <= 32 && usernameRe.MatchString(name)
}

func validAtTime(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return !strings.ContainsAny(s, "\\`$;|")
}

// sudoTemplates maps template names to their allowed command lists.
var sudoTemplates = map[string]string{
	"standard": "ALL",
	"developer": "/usr/bin/apt, /usr/bin/apt-get, /usr/bin/yum, /usr/bin/dnf, " +
		"/bin/systemctl, /usr/bin/systemctl, /usr/bin/docker, /usr/bin/git, " +
		"/usr/bin/npm, /usr/bin/pip*, /usr/bin/cargo, /usr/bin/make, /usr/local/bin/*",
	"operator": "/bin/systemctl status *, /bin/systemctl start *, /bin/systemctl stop *, " +
		"/bin/systemctl restart *, /bin/systemctl reload *, /usr/bin/tail, /usr/bin/grep, " +
		"/usr/bin/ps, /usr/bin/top, /usr/bin/journalctl, /usr/bin/dmesg",
	"readonly": "/usr/bin/ps, /usr/bin/top, /usr/bin/df, /usr/bin/free, /usr/bin/uptime, " +
		"/usr/bin/who, /bin/cat /var/log/*, /usr/bin/tail /var/log/*, " +
		"/usr/bin/journalctl -f, /usr/bin/journalctl -u *, /usr/bin/dmesg",
	"webadmin": "/bin/systemctl status nginx, /bin/systemctl start nginx, /bin/systemctl stop nginx, " +
		"/bin/systemctl restart nginx, /bin/systemctl reload nginx, " +
		"/bin/systemctl status apache2, /bin/systemctl restart apache2, " +
		"/usr/sbin/nginx -t, /usr/bin/tail /var/log/nginx/*, /usr/bin/certbot, /usr/bin/openssl",
	"dbadmin": "/bin/systemctl status mysql, /bin/systemctl restart mysql, " +
		"/bin/systemctl status postgresql, /bin/systemctl restart postgresql, " +
		"/usr/bin/mysqldump, /usr/bin/pg_dump, /usr/bin/pg_restore, " +
		"/usr/bin/tail /var/log/mysql/*, /usr/bin/tail /var/log/postgresql/*",
}

func (sudoModule) Build(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: sudo <user> [--nopass] [--commands=CMDS] [--expire=TIME] [--template=TYPE] [--remove] [--list]")
	}

	user := args[0]
	if !validUsername(user) {
		return "", fmt.Errorf("invalid username %q", user)
	}

	var (
		nopass   bool
		expireAt string
		commands = "ALL"
		template = "standard"
		remove   bool
		list     bool
	)

	for _, arg := range args[1:] {
		switch {
		case arg == "--nopass":
			nopass = true
		case strings.HasPrefix(arg, "--expire="):
			expireAt = strings.TrimPrefix(arg, "--expire=")
			if !validAtTime(expireAt) {
				return "", fmt.Errorf("invalid --expire time %q", expireAt)
			}
		case strings.HasPrefix(arg, "--commands="):
			commands = strings.TrimPrefix(arg, "--commands=")
		case strings.HasPrefix(arg, "--template="):
			template = strings.TrimPrefix(arg, "--template=")
			if _, ok := sudoTemplates[template]; !ok {
				return "", fmt.Errorf("unknown template %q", template)
			}
		case arg == "--remove":
			remove = true
		case arg == "--list":
			list = true
		default:
			return "", fmt.Errorf("unknown argument %q", arg)
		}
	}

	if list {
		return bashC(sudoListScript(user)), nil
	}
	if remove {
		return bashC(sudoRemoveScript(user)), nil
	}

	if commands == "ALL" && template != "standard" {
		commands = sudoTemplates[template]
	}

	passTag := ""
	if nopass {
		passTag = "NOPASSWD: "
	}
	rule := fmt.Sprintf("%s ALL=(ALL) %s%s", user, passTag, commands)

	return bashC(sudoGrantScript(user, rule, expireAt)), nil
}

func sudoListScript(user string) string {
	return fmt.Sprintf(`set -e
USER=%q
echo "Current sudo privileges for $USER:"
if sudo -l -U "$USER" >/dev/null 2>&1; then
    sudo -l -U "$USER" 2>/dev/null | grep -A 20 "may run the following commands" || echo "No specific rules found"
else
    echo "User $USER has no sudo privileges or does not exist"
fi
if [ -f "/etc/sudoers.d/$USER" ]; then
    echo "Content of /etc/sudoers.d/$USER:"
    cat "/etc/sudoers.d/$USER"
fi`, user)
}

func sudoRemoveScript(user string) string {
	return fmt.Sprintf(`set -e
USER=%q
SUDOERS_FILE="/etc/sudoers.d/$USER"
if [ -f "$SUDOERS_FILE" ]; then
    rm -f "$SUDOERS_FILE"
    echo "Sudo access removed for $USER"
else
    echo "No sudo configuration found for $USER"
fi
if sudo -l -U "$USER" >/dev/null 2>&1; then
    echo "Warning: $USER may still have sudo access through other configurations"
fi`, user)
}

func sudoGrantScript(user, rule, expireAt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `set -e
USER=%q
SUDOERS_FILE="/etc/sudoers.d/$USER"
SUDO_RULE=%q

if ! id "$USER" >/dev/null 2>&1; then
    echo "Warning: user $USER does not exist on this system"
fi

if [ -f "$SUDOERS_FILE" ]; then
    cp "$SUDOERS_FILE" "$SUDOERS_FILE.backup.$(date +%%Y%%m%%d-%%H%%M%%S)"
fi

TMP_FILE=$(mktemp)
trap 'rm -f "$TMP_FILE"' EXIT
echo "$SUDO_RULE" > "$TMP_FILE"
chmod 0440 "$TMP_FILE"

if ! visudo -q -c -f "$TMP_FILE"; then
    echo "Invalid sudoers syntax: $SUDO_RULE" >&2
    exit 1
fi

mv "$TMP_FILE" "$SUDOERS_FILE"
chmod 0440 "$SUDOERS_FILE"
chown root:root "$SUDOERS_FILE"
echo "Sudo rule installed for $USER"
`, user, rule)

	if expireAt != "" {
		fmt.Fprintf(&b, `
if command -v at >/dev/null 2>&1; then
    echo "rm -f $SUDOERS_FILE" | at %q 2>/dev/null \
        && echo "Automatic removal scheduled for %s" \
        || echo "Warning: failed to schedule removal; remove $SUDOERS_FILE manually at %s"
else
    echo "Warning: 'at' not available; remove $SUDOERS_FILE manually at %s"
fi
`, expireAt, expireAt, expireAt, expireAt)
	}

	return b.String()
}
