package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pkt.systems/attackdeck/schema"
)

func TestDefaultCatalogParses(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	require.Equal(t, 5, cat.Len())

	fuzzer, ok := cat.Tool("gan-fuzzer")
	require.True(t, ok)
	attack, ok := fuzzer.FirstAttack()
	require.True(t, ok)
	require.Equal(t, schema.AttackID("ngap-fuzz"), attack.ID)

	ueransim, ok := cat.Tool("ueransim")
	require.True(t, ok)
	require.True(t, ueransim.IsMultiOutput())
	require.Equal(t, []schema.StreamID{"gnb", "ue"}, ueransim.StreamIDs())
	require.Equal(t, "NG Setup procedure is successful", ueransim.ReadyMarker("gnb"))

	viewer, ok := cat.Tool("packet-viewer")
	require.True(t, ok)
	require.Equal(t, "Listening on", viewer.ReadyMarker(""))

	require.Equal(t, []schema.Category{"5g", "analysis", "misc", "recon"}, cat.Categories())
}

func TestGANFuzzerCommandIsDeterministic(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	tool, _ := cat.Tool("gan-fuzzer")
	attack, _ := tool.FirstAttack()
	params := schema.Parameters{"target-host": "10.0.0.2", "target-port": "38412"}

	first, err := attack.Command.Build(params)
	require.NoError(t, err)
	second, err := attack.Command.Build(params)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "docker run --rm --network host ghcr.io/5g-security/gan-fuzzer:latest --target-host 10.0.0.2 --target-port 38412 --protocol ngap", first)
}

func TestTemplateBuild(t *testing.T) {
	tmpl := Template("nmap -p {{ port }} {{target}} {{target}}")
	out, err := tmpl.Build(schema.Parameters{"port": "22", "target": "host"})
	require.NoError(t, err)
	require.Equal(t, "nmap -p 22 host host", out)
	require.Equal(t, []string{"port", "target"}, tmpl.Placeholders())

	_, err = tmpl.Build(schema.Parameters{"port": "22"})
	require.ErrorContains(t, err, "target")
}

func TestParamsForInheritsToolSchema(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	nmap, _ := cat.Tool("nmap")

	quick, _ := nmap.Attack("quick")
	require.Equal(t, nmap.Params, nmap.ParamsFor(&quick))

	udp, _ := nmap.Attack("udp")
	require.Len(t, nmap.ParamsFor(&udp), 2)
	require.Equal(t, schema.Parameters{"target": "127.0.0.1", "ports": "100"}, DefaultParams(nmap.ParamsFor(&udp)))
}

func TestNewRejectsInvalidTools(t *testing.T) {
	cases := []struct {
		name string
		tool Tool
	}{
		{name: "missing id", tool: Tool{}},
		{name: "duplicate attack", tool: Tool{ID: "x", Attacks: []Attack{{ID: "a"}, {ID: "a"}}}},
		{name: "duplicate param", tool: Tool{ID: "x", Params: []ParamSpec{{Name: "p"}, {Name: "p"}}}},
		{name: "empty multi", tool: Tool{ID: "x", MultiOutput: &MultiOutput{}}},
		{name: "output without command", tool: Tool{ID: "x", MultiOutput: &MultiOutput{Outputs: []SubCommand{{ID: "a"}}}}},
		{name: "bad port", tool: Tool{ID: "x", Surface: &Surface{Port: 70000}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.tool)
			require.Error(t, err)
		})
	}

	_, err := New(Tool{ID: "x"}, Tool{ID: "x"})
	require.ErrorContains(t, err, "duplicate tool id")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("tools:\n  - id: x\n    bogus: 1\n"))
	require.Error(t, err)
}

func TestLoadMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	data := []byte(`tools:
  - id: nmap
    name: Nmap (local)
    command: /usr/local/bin/nmap {{target}}
    parameters:
      - name: target
        default: 10.0.0.1
  - id: sqlmap
    name: sqlmap
    category: web
    command: sqlmap -u {{url}}
    parameters:
      - name: url
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 6, cat.Len())

	nmap, ok := cat.Tool("nmap")
	require.True(t, ok)
	require.Equal(t, "Nmap (local)", nmap.Name)
	require.Empty(t, nmap.Attacks)

	tools := cat.Tools()
	require.Equal(t, schema.ToolID("nmap"), tools[1].ID)
	require.Equal(t, schema.ToolID("sqlmap"), tools[len(tools)-1].ID)
}
