package classify

import "strings"

// 机构号标识：provider 的组织 URN 前缀（大小写不敏感）。
const companyURNPrefix = "urn:li:company:"

// IsCompanyID 判断一个标识是否机构所有。空标识按个人处理。
func IsCompanyID(id string) bool {
	if id == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(id), companyURNPrefix)
}

// IsCompanyChat 判断会话是否机构发起：
// 发信人是机构号，或严格过半的参与者是机构号。
// 纯函数，没有任何 IO；缺少任何识别字段时一律判个人。
// 边界：恰好一半 => 个人；过半 => 机构。
func IsCompanyChat(senderID string, attendeeIDs []string) bool {
	if IsCompanyID(senderID) {
		return true
	}
	if len(attendeeIDs) == 0 {
		return false
	}
	company := 0
	for _, id := range attendeeIDs {
		if IsCompanyID(id) {
			company++
		}
	}
	return company*2 > len(attendeeIDs)
}
