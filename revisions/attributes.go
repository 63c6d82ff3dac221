package revisions

import (
	"context"
	"fmt"
	"sort"

	"github.com/root-talis/fuelmig/backfill"
	"github.com/root-talis/fuelmig/document"
	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/schema"
)

var roleGroups = map[string]string{ //nolint:gochecknoglobals
	"controller":          "base",
	"compute":             "compute",
	"virt":                "compute",
	"compute-vmware":      "compute",
	"ironic":              "compute",
	"cinder":              "storage",
	"cinder-block-device": "storage",
	"cinder-vmware":       "storage",
	"ceph-osd":            "storage",
}

const defaultRoleGroup = "other"

func roleGroupsRewrite(fn func(text string) (string, error)) backfill.Rewrite {
	return backfill.Rewrite{
		Table:     "releases",
		Key:       "id",
		Column:    "roles_metadata",
		Transform: fn,
	}
}

// setRoleGroups puts every role of a release into its group.
func setRoleGroups(text string) (string, error) {
	roles, err := roleNames(text)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		group, ok := roleGroups[role]
		if !ok {
			group = defaultRoleGroup
		}
		if text, err = document.Set(text, document.PathKey(role)+".group", group); err != nil {
			return "", err
		}
	}
	return text, nil
}

func removeRoleGroups(text string) (string, error) {
	roles, err := roleNames(text)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if text, err = document.Delete(text, document.PathKey(role)+".group"); err != nil {
			return "", err
		}
	}
	return text, nil
}

func roleNames(text string) ([]string, error) {
	doc, err := document.Parse(text)
	if err != nil {
		return nil, err
	}
	roles, err := document.Object(doc)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for name, meta := range roles {
		if _, err := document.Object(meta); err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ---

// updateVipNamespaces fills ip_addrs.vip_namespace from the VIPs declared in
// network roles. Release declarations win over plugin ones.
func updateVipNamespaces(ctx context.Context, tx driver.Tx) error {
	namespaces := make(map[string]string)
	for _, table := range []string{"plugins", "releases"} {
		rows, err := schema.ScanAll(ctx, tx, schema.Query{
			Table:   table,
			Columns: []string{"id", "network_roles_metadata"},
			NotNull: []string{"network_roles_metadata"},
			OrderBy: []string{"id"},
		})
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", table, err)
		}
		for _, row := range rows {
			if err := collectVipNamespaces(row["network_roles_metadata"], namespaces); err != nil {
				return &backfill.RowError{Table: table, Key: schema.KeyString(row["id"]), Err: err}
			}
		}
	}

	addrs, err := schema.ScanAll(ctx, tx, schema.Query{
		Table:   "ip_addrs",
		Columns: []string{"id", "vip_name"},
		NotNull: []string{"vip_name"},
		OrderBy: []string{"id"},
	})
	if err != nil {
		return fmt.Errorf("failed to read ip_addrs: %w", err)
	}

	for _, addr := range addrs {
		name, _ := addr["vip_name"].(string)
		namespace := namespaces[name]
		if namespace == "" {
			continue
		}
		if _, err := tx.Update(ctx, "ip_addrs", schema.Row{"id": addr["id"]}, schema.Row{"vip_namespace": namespace}); err != nil {
			return &backfill.RowError{Table: "ip_addrs", Key: schema.KeyString(addr["id"]), Err: err}
		}
	}
	return nil
}

// collectVipNamespaces reads network roles metadata, a list of roles or a
// single role, and records the namespace of every VIP by name.
func collectVipNamespaces(value interface{}, into map[string]string) error {
	doc, err := document.FromColumn(value)
	if err != nil {
		return err
	}
	if role, ok := doc.(map[string]interface{}); ok {
		doc = []interface{}{role}
	}
	roles, err := document.Array(doc)
	if err != nil {
		return err
	}

	for _, item := range roles {
		role, err := document.Object(item)
		if err != nil {
			return err
		}
		properties, err := document.Object(role["properties"])
		if err != nil {
			return err
		}
		vips, err := document.Array(properties["vip"])
		if err != nil {
			return err
		}
		for _, v := range vips {
			vip, err := document.Object(v)
			if err != nil {
				return err
			}
			name, ok := vip["name"].(string)
			if !ok {
				return fmt.Errorf("%w: vip without a name", document.ErrUnexpectedShape)
			}
			namespace, _ := vip["namespace"].(string)
			into[name] = namespace
		}
	}
	return nil
}

// ---

// cephStorageAttributes are the generated Ceph secrets of a cluster.
func cephStorageAttributes() map[string]interface{} {
	hidden := func(generator string) map[string]interface{} {
		return map[string]interface{}{
			"type":  "hidden",
			"value": map[string]interface{}{"generator": generator},
		}
	}
	return map[string]interface{}{
		"fsid":              hidden("uuid4"),
		"mon_key":           hidden("cephx_key"),
		"admin_key":         hidden("cephx_key"),
		"bootstrap_osd_key": hidden("cephx_key"),
		"radosgw_key":       hidden("cephx_key"),
	}
}

func cephAttributesRewrite(fn func(text string) (string, error)) backfill.Rewrite {
	return backfill.Rewrite{
		Table:     "attributes",
		Key:       "id",
		Column:    "editable",
		Transform: fn,
	}
}

// addCephAttributes only touches clusters that have a storage section.
func addCephAttributes(text string) (string, error) {
	if _, err := document.Parse(text); err != nil {
		return "", err
	}
	storage, ok := document.Lookup(text, "storage")
	if !ok {
		return text, nil
	}
	if _, isObject := storage.(map[string]interface{}); !isObject {
		return text, nil
	}

	attrs := cephStorageAttributes()
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var err error
	for _, name := range names {
		if text, err = document.Set(text, "storage."+name, attrs[name]); err != nil {
			return "", err
		}
	}
	return text, nil
}

func removeCephAttributes(text string) (string, error) {
	if _, ok := document.Lookup(text, "storage"); !ok {
		return text, nil
	}

	var err error
	for name := range cephStorageAttributes() {
		if text, err = document.Delete(text, "storage."+name); err != nil {
			return "", err
		}
	}
	return text, nil
}
