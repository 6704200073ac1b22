package module

import "fmt"

// collectFactsModule emits a small JSON document of system facts from each
// target.
type collectFactsModule struct{}

func (collectFactsModule) Name() string { return "collect-facts" }

func (collectFactsModule) Build(args []string) (string, error) {
	if len(args) != 0 {
		return "", fmt.Errorf("collect-facts takes no arguments")
	}

	const script = `set -e
OS=$(uname -s)
ARCH=$(uname -m)
KERNEL=$(uname -r)
HOSTNAME=$(hostname)
UPTIME=$(cut -d' ' -f1 /proc/uptime 2>/dev/null || echo 0)

echo "{"
echo "  \"os\": \"${OS}\","
echo "  \"arch\": \"${ARCH}\","
echo "  \"kernel\": \"${KERNEL}\","
echo "  \"hostname\": \"${HOSTNAME}\","
echo "  \"uptime_seconds\": ${UPTIME%.*}"
echo "}"`

	return bashC(script), nil
}
